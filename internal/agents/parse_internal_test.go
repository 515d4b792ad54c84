package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBlock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		content    string
		want       string
		wantFenced bool
	}{
		{name: "yaml fence", content: "Here:\n```yaml\ntitle: x\n```\n", want: "title: x", wantFenced: true},
		{name: "json fence", content: "```json\n{\"title\": \"x\"}\n```", want: "{\"title\": \"x\"}", wantFenced: true},
		{name: "bare fence", content: "```\ntitle: x\n```", want: "title: x", wantFenced: true},
		{name: "no fence", content: "  title: x\n", want: "title: x", wantFenced: false},
		{name: "first of many", content: "```yaml\na: 1\n```\n```yaml\nb: 2\n```", want: "a: 1", wantFenced: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, fenced := extractBlock(tt.content)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFenced, fenced)
		})
	}
}

func TestSplitTrailingBlock(t *testing.T) {
	t.Parallel()
	prose, block, found := splitTrailingBlock("第一段。\n\n```yaml\na: 1\n```\n\n第二段。\n\n```yaml\nb: 2\n```\n")
	assert.True(t, found)
	assert.Equal(t, "第一段。\n\n```yaml\na: 1\n```\n\n第二段。", prose)
	assert.Equal(t, "b: 2", block)

	prose, block, found = splitTrailingBlock("只有正文。\n")
	assert.False(t, found)
	assert.Equal(t, "只有正文。", prose)
	assert.Empty(t, block)
}
