package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	roleLine       = regexp.MustCompile(`You are the (\w+)`)
	chapterLine    = regexp.MustCompile(`(?m)^Chapter: (\S+)`)
	goalLine       = regexp.MustCompile(`(?m)^Goal: (.+)$`)
	charactersLine = regexp.MustCompile(`(?m)^Characters: (.+)$`)
)

const mockChunkRunes = 64

// Mock is a deterministic generator for demos and smoke tests. It recognises the agent role from the system prompt
// and answers in that role's output format.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Chat(ctx context.Context, messages []Message, opts Options) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, &ProviderError{Provider: "mock", StatusCode: 0, Retryable: true, Err: err}
	}
	var system, user strings.Builder
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system.WriteString(msg.Content)
		} else {
			user.WriteString(msg.Content)
			user.WriteString("\n")
		}
	}

	prompt := user.String()
	chapter := firstMatch(chapterLine, prompt, "ch01")
	goal := firstMatch(goalLine, prompt, "推进主线")
	characters := strings.Split(firstMatch(charactersLine, prompt, "主角"), ",")
	for i := range characters {
		characters[i] = strings.TrimSpace(characters[i])
	}

	var content string
	switch strings.ToLower(firstMatch(roleLine, system.String(), "")) {
	case "archivist":
		content = mockBrief(chapter, goal, characters)
	case "writer":
		content = mockDraft(chapter, goal, characters)
	case "reviewer":
		content = mockReview()
	case "editor":
		content = mockFinal(chapter, goal, characters)
	case "summarizer":
		content = mockSummary(chapter, goal)
	default:
		content = "（模拟输出）" + strings.TrimSpace(prompt)
	}

	if opts.OnDelta != nil {
		for _, chunk := range chunks(content, mockChunkRunes) {
			opts.OnDelta(chunk)
		}
	}
	return Response{
		Content:      content,
		Usage:        Usage{InputTokens: utf8.RuneCountInString(prompt), OutputTokens: utf8.RuneCountInString(content)},
		FinishReason: "stop",
		Model:        "mock",
		Latency:      0,
	}, nil
}

func firstMatch(re *regexp.Regexp, s, fallback string) string {
	if m := re.FindStringSubmatch(s); len(m) == 2 && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	return fallback
}

func chunks(s string, n int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		size := min(n, len(runes))
		out = append(out, string(runes[:size]))
		runes = runes[size:]
	}
	return out
}

func yamlList(items []string, indent string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%s- %q\n", indent, item)
	}
	return b.String()
}

func mockBrief(chapter, goal string, characters []string) string {
	return fmt.Sprintf("```yaml\n"+
		"title: %q\n"+
		"goal: %q\n"+
		"setting: \"旧城区，雨夜\"\n"+
		"characters:\n%s"+
		"beats:\n"+
		"  - \"开场：雨夜的街道\"\n"+
		"  - \"冲突：线索出现\"\n"+
		"  - \"收束：新的疑问\"\n"+
		"constraints:\n"+
		"  - \"保持人物动机一致\"\n"+
		"```\n", chapter+" 雨夜", goal, yamlList(characters, "  "))
}

func mockProse(chapter, goal string, characters []string) string {
	lead := characters[0]
	return fmt.Sprintf("雨从傍晚开始下，%s站在旧城区的屋檐下，想着这一章的目标：%s。\n\n"+
		"街灯昏黄，%s在积水里看见了一张被泡皱的纸条，上面写着下一次见面的时间。\n\n"+
		"（%s 完）", lead, goal, lead, chapter)
}

func mockDraft(chapter, goal string, characters []string) string {
	return mockProse(chapter, goal, characters) + fmt.Sprintf("\n\n```yaml\n"+
		"canon_updates:\n"+
		"  facts:\n"+
		"    - id: %q\n"+
		"      statement: %q\n"+
		"      confidence: 0.9\n"+
		"  timeline_events:\n"+
		"    - time: %q\n"+
		"      event: \"发现纸条\"\n"+
		"      participants:\n%s"+
		"      location: \"旧城区\"\n"+
		"  character_states:\n"+
		"    - character: %q\n"+
		"      location: \"旧城区\"\n"+
		"      emotional_state: \"警惕\"\n"+
		"pending_confirmations:\n"+
		"  - \"纸条上的时间是否需要与前文呼应\"\n"+
		"```\n",
		chapter+"-F01", chapter+"中出现了一张写有见面时间的纸条", chapter+" 雨夜",
		yamlList(characters[:1], "        "), characters[0])
}

func mockReview() string {
	return "```yaml\n" +
		"score: 7.5\n" +
		"strengths:\n" +
		"  - \"氛围营造到位\"\n" +
		"issues:\n" +
		"  - category: \"pacing\"\n" +
		"    severity: \"minor\"\n" +
		"    problem: \"结尾略显仓促\"\n" +
		"    suggestion: \"增加一个过渡段落\"\n" +
		"verdict: \"revise\"\n" +
		"```\n"
}

func mockFinal(chapter, goal string, characters []string) string {
	return mockProse(chapter, goal, characters) + "\n\n雨声渐渐小了，答案还在更深的夜里。"
}

func mockSummary(chapter, goal string) string {
	return fmt.Sprintf("```yaml\n"+
		"title: %q\n"+
		"brief_summary: %q\n"+
		"key_events:\n"+
		"  - \"发现纸条\"\n"+
		"open_loops:\n"+
		"  - \"纸条是谁留下的\"\n"+
		"```\n", chapter+" 雨夜", "本章围绕「"+goal+"」展开，主角在雨夜发现了关键线索。")
}
