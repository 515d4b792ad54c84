package agents

import (
	"regexp"
	"strings"

	"github.com/myrjola/inkwell/internal/errors"
	"gopkg.in/yaml.v3"
)

// fence matches a Markdown code block. The language tag is optional.
var fence = regexp.MustCompile("(?s)```[A-Za-z]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// extractBlock returns the contents of the first code block, or the whole trimmed content when there is none.
func extractBlock(content string) (string, bool) {
	if m := fence.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return strings.TrimSpace(content), false
}

// splitTrailingBlock separates prose from the last code block that follows it.
func splitTrailingBlock(content string) (string, string, bool) {
	matches := fence.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(content), "", false
	}
	last := matches[len(matches)-1]
	prose := strings.TrimSpace(content[:last[0]] + content[last[1]:])
	return prose, strings.TrimSpace(content[last[2]:last[3]]), true
}

// decodeYAML decodes structured model output. JSON is accepted because it is valid YAML.
func decodeYAML(text string, dst any) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty structured output")
	}
	if err := yaml.Unmarshal([]byte(text), dst); err != nil {
		return errors.Wrap(err, "unmarshal yaml")
	}
	return nil
}
