package agents_test

import (
	"context"
	"testing"

	"github.com/myrjola/inkwell/internal/agents"
	"github.com/myrjola/inkwell/internal/ai"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llmConfig(t *testing.T) config.LLMConfig {
	t.Helper()
	cfg, err := config.Load(nil)
	require.NoError(t, err)
	return cfg.LLM
}

// replying returns a generator that answers every call with content and records the calls.
func replying(content string, calls *[][]ai.Message, opts *[]ai.Options) ai.GeneratorFunc {
	return func(_ context.Context, messages []ai.Message, o ai.Options) (ai.Response, error) {
		if calls != nil {
			*calls = append(*calls, messages)
		}
		if opts != nil {
			*opts = append(*opts, o)
		}
		return ai.Response{Content: content, FinishReason: "stop", Model: "test"}, nil
	}
}

func TestTeam_mockPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	team, err := agents.NewTeam(ai.NewMock(), llmConfig(t), testhelpers.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, team, len(agents.Roles))

	in := agents.Input{
		ChapterID:  "ch03",
		Goal:       "林雨发现纸条",
		Characters: []string{"林雨", "周警官"},
		Context:    "## Facts / 事实\n- '[ch01-F01] 林雨是记者 (ch01)'\n",
	}

	out, err := team[agents.RoleArchivist].Execute(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, out.Brief)
	assert.Equal(t, "ch03", out.Brief.Chapter)
	assert.Equal(t, "ch03 雨夜", out.Brief.Title)
	assert.Equal(t, "林雨发现纸条", out.Brief.Goal)
	assert.Equal(t, []string{"林雨", "周警官"}, out.Brief.Characters)
	assert.Len(t, out.Brief.Beats, 3)
	in.Brief = out.Brief

	out, err = team[agents.RoleWriter].Execute(ctx, in)
	require.NoError(t, err)
	assert.NotContains(t, out.Text, "```")
	assert.Contains(t, out.Text, "林雨")
	require.Len(t, out.Canon.Facts, 1)
	assert.Equal(t, models.Fact{
		ID:           "ch03-F01",
		Statement:    "ch03中出现了一张写有见面时间的纸条",
		Source:       "ch03",
		IntroducedIn: "ch03",
		Confidence:   0.9,
	}, out.Canon.Facts[0])
	require.Len(t, out.Canon.TimelineEvents, 1)
	assert.Equal(t, []string{"林雨"}, out.Canon.TimelineEvents[0].Participants)
	assert.Equal(t, "ch03", out.Canon.TimelineEvents[0].Source)
	require.Len(t, out.Canon.CharacterStates, 1)
	assert.Equal(t, "ch03", out.Canon.CharacterStates[0].LastSeen)
	assert.Equal(t, "旧城区", out.Canon.CharacterStates[0].Location)
	assert.Len(t, out.PendingConfirmations, 1)
	assert.Positive(t, out.Usage.OutputTokens)
	in.Draft = &models.Draft{Chapter: "ch03", Version: 1, Content: out.Text, WordCount: models.CountWords(out.Text)}

	out, err = team[agents.RoleReviewer].Execute(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, out.Review)
	assert.Equal(t, "ch03", out.Review.Chapter)
	assert.Equal(t, 1, out.Review.DraftVersion)
	assert.InDelta(t, 7.5, out.Review.Score, 0.001)
	assert.Equal(t, "revise", out.Review.Verdict)
	require.Len(t, out.Review.Issues, 1)
	assert.Equal(t, "minor", out.Review.Issues[0].Severity)
	in.Review = out.Review

	out, err = team[agents.RoleEditor].Execute(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "答案还在更深的夜里")
	in.Draft = &models.Draft{Chapter: "ch03", Version: 2, Content: out.Text, WordCount: models.CountWords(out.Text)}

	out, err = team[agents.RoleSummarizer].Execute(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "ch03", out.Summary.Chapter)
	assert.Equal(t, "ch03 雨夜", out.Summary.Title)
	assert.Equal(t, in.Draft.WordCount, out.Summary.WordCount)
	assert.Equal(t, []string{"发现纸条"}, out.Summary.KeyEvents)
	assert.Equal(t, []string{"纸条是谁留下的"}, out.Summary.OpenLoops)
}

func TestAgent_prompt(t *testing.T) {
	t.Parallel()
	var (
		calls [][]ai.Message
		opts  []ai.Options
	)
	agent, err := agents.New(agents.RoleReviewer, replying("verdict: accept\n", &calls, &opts), llmConfig(t),
		testhelpers.NewTestLogger(t))
	require.NoError(t, err)
	require.Equal(t, agents.RoleReviewer, agent.Role())

	_, err = agent.Execute(context.Background(), agents.Input{
		ChapterID:  "ch03",
		Goal:       "推进主线",
		Characters: []string{"林雨", "周警官"},
		Context:    "## Rules / 规则\n",
		Draft:      &models.Draft{Chapter: "ch03", Version: 2, Content: "雨夜。"},
	})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	messages := calls[0]
	require.Len(t, messages, 3)
	assert.Equal(t, ai.RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "You are the Reviewer")
	assert.Equal(t, "Context:\n## Rules / 规则\n", messages[1].Content)
	assert.Contains(t, messages[2].Content, "Chapter: ch03\nGoal: 推进主线\nCharacters: 林雨, 周警官\n")
	assert.Contains(t, messages[2].Content, "## Draft v2\n雨夜。")

	require.NotNil(t, opts[0].Temperature)
	assert.InDelta(t, 0.2, *opts[0].Temperature, 0.0001)
	assert.Equal(t, 4096, opts[0].MaxOutput)
}

func TestAgent_failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		role      agents.Role
		generator ai.GeneratorFunc
		wantErr   error
		retryable bool
	}{
		{
			name: "truncated output",
			role: agents.RoleWriter,
			generator: func(context.Context, []ai.Message, ai.Options) (ai.Response, error) {
				return ai.Response{Content: "雨从傍晚", FinishReason: ai.FinishReasonLength}, nil
			},
			wantErr:   errors.ErrProvider,
			retryable: true,
		},
		{
			name: "provider failure",
			role: agents.RoleArchivist,
			generator: func(context.Context, []ai.Message, ai.Options) (ai.Response, error) {
				return ai.Response{}, &ai.ProviderError{Provider: "openai", StatusCode: 503, Retryable: true,
					Err: errors.New("unavailable")}
			},
			wantErr:   errors.ErrProvider,
			retryable: true,
		},
		{
			name:      "review is prose",
			role:      agents.RoleReviewer,
			generator: replying("The draft reads well.", nil, nil),
			wantErr:   errors.ErrValidation,
		},
		{
			name:      "summary without brief",
			role:      agents.RoleSummarizer,
			generator: replying("```yaml\ntitle: 雨夜\n```", nil, nil),
			wantErr:   errors.ErrValidation,
		},
		{
			name:      "broken canon block",
			role:      agents.RoleWriter,
			generator: replying("雨夜。\n\n```yaml\ncanon_updates: [\n```", nil, nil),
			wantErr:   errors.ErrValidation,
		},
		{
			name:      "empty final",
			role:      agents.RoleEditor,
			generator: replying("  \n", nil, nil),
			wantErr:   errors.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			agent, err := agents.New(tt.role, tt.generator, llmConfig(t), testhelpers.NewTestLogger(t))
			require.NoError(t, err)
			_, err = agent.Execute(context.Background(), agents.Input{ChapterID: "ch03"})
			require.ErrorIs(t, err, tt.wantErr)
			if tt.retryable {
				var pe *ai.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.True(t, pe.Retryable)
			}
		})
	}
}

func TestWriter_canonUpdates(t *testing.T) {
	t.Parallel()
	content := "雨停了。\n\n```yaml\n" +
		"canon_updates:\n" +
		"  facts:\n" +
		"    - statement: \"林雨住在旧城区\"\n" +
		"    - id: custom\n" +
		"      statement: \"周警官不是凶手\"\n" +
		"      confidence: 1.5\n" +
		"    - id: empty\n" +
		"  timeline_events:\n" +
		"    - time: \"深夜\"\n" +
		"      event: \"无人见证\"\n" +
		"  character_states:\n" +
		"    - character: \"林雨\"\n" +
		"      location: \"旧城区\"\n" +
		"      last_seen: \"ch02\"\n" +
		"    - location: \"无名\"\n" +
		"```\n"
	agent, err := agents.New(agents.RoleWriter, replying(content, nil, nil), llmConfig(t),
		testhelpers.NewTestLogger(t))
	require.NoError(t, err)

	out, err := agent.Execute(context.Background(), agents.Input{ChapterID: "ch04"})
	require.NoError(t, err)
	assert.Equal(t, "雨停了。", out.Text)
	require.Len(t, out.Canon.Facts, 2)
	assert.Equal(t, "ch04-F01", out.Canon.Facts[0].ID)
	assert.InDelta(t, 1.0, out.Canon.Facts[0].Confidence, 0.0001)
	assert.Equal(t, "ch04-custom", out.Canon.Facts[1].ID)
	assert.InDelta(t, 1.0, out.Canon.Facts[1].Confidence, 0.0001)
	assert.Empty(t, out.Canon.TimelineEvents)
	require.Len(t, out.Canon.CharacterStates, 1)
	assert.Equal(t, "ch02", out.Canon.CharacterStates[0].LastSeen)
	assert.Equal(t, "ch04", out.Canon.CharacterStates[0].Source)
	assert.Empty(t, out.PendingConfirmations)
}

func TestWriter_factIDsAreNamespacedByChapter(t *testing.T) {
	t.Parallel()
	content := "正文。\n\n```yaml\n" +
		"canon_updates:\n" +
		"  facts:\n" +
		"    - id: F001\n" +
		"      statement: \"纸条上写着午夜\"\n" +
		"    - id: ch07-F002\n" +
		"      statement: \"林雨认得笔迹\"\n" +
		"    - id: F001\n" +
		"      statement: \"纸条被雨打湿\"\n" +
		"```\n"
	agent, err := agents.New(agents.RoleWriter, replying(content, nil, nil), llmConfig(t),
		testhelpers.NewTestLogger(t))
	require.NoError(t, err)

	out, err := agent.Execute(context.Background(), agents.Input{ChapterID: "ch07"})
	require.NoError(t, err)
	var ids []string
	for _, f := range out.Canon.Facts {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []string{"ch07-F001", "ch07-F002", "ch07-F001-3"}, ids)
}

func TestWriter_withoutCanonBlock(t *testing.T) {
	t.Parallel()
	agent, err := agents.New(agents.RoleWriter, replying("只有正文。", nil, nil), llmConfig(t),
		testhelpers.NewTestLogger(t))
	require.NoError(t, err)

	out, err := agent.Execute(context.Background(), agents.Input{ChapterID: "ch01"})
	require.NoError(t, err)
	assert.Equal(t, "只有正文。", out.Text)
	assert.True(t, out.Canon.Empty())
}

func TestNew_unknownRole(t *testing.T) {
	t.Parallel()
	_, err := agents.New("narrator", ai.NewMock(), llmConfig(t), testhelpers.NewTestLogger(t))
	require.ErrorIs(t, err, errors.ErrValidation)
}
