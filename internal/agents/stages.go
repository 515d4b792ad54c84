package agents

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"gopkg.in/yaml.v3"
)

var stages = map[Role]stage{
	RoleArchivist: {
		system: "You are the Archivist of a long-form novel project. Plan the next chapter as a scene brief that " +
			"respects the established canon. Answer only with a YAML block containing title, goal, setting, " +
			"characters, beats and constraints.",
		prompt: archivistPrompt,
		parse:  parseBrief,
	},
	RoleWriter: {
		system: "You are the Writer of a long-form novel project. Write the chapter prose following the scene brief " +
			"and the style card. After the prose, append a YAML block with canon_updates (facts, timeline_events, " +
			"character_states) and pending_confirmations.",
		prompt: writerPrompt,
		parse:  parseDraft,
	},
	RoleReviewer: {
		system: "You are the Reviewer of a long-form novel project. Critique the draft for consistency, pacing and " +
			"style. Answer only with a YAML block containing score, strengths, issues (category, severity, " +
			"problem, suggestion) and verdict.",
		prompt: reviewerPrompt,
		parse:  parseReview,
	},
	RoleEditor: {
		system: "You are the Editor of a long-form novel project. Revise the draft according to the review and the " +
			"reported canon conflicts. Answer only with the final chapter prose.",
		prompt: editorPrompt,
		parse:  parseFinal,
	},
	RoleSummarizer: {
		system: "You are the Summarizer of a long-form novel project. Summarize the final chapter for later " +
			"chapters. Answer only with a YAML block containing title, brief_summary, key_events and open_loops.",
		prompt: summarizerPrompt,
		parse:  parseSummary,
	},
}

// header writes the lines every prompt starts with.
func header(b *strings.Builder, in Input) {
	fmt.Fprintf(b, "Chapter: %s\n", in.ChapterID)
	if in.Goal != "" {
		fmt.Fprintf(b, "Goal: %s\n", in.Goal)
	}
	if len(in.Characters) > 0 {
		fmt.Fprintf(b, "Characters: %s\n", strings.Join(in.Characters, ", "))
	}
	b.WriteString("\n")
}

func yamlSection(b *strings.Builder, title string, v any) {
	body, err := yaml.Marshal(v)
	if err != nil {
		body = []byte(fmt.Sprintf("%v\n", v))
	}
	fmt.Fprintf(b, "## %s\n%s\n", title, body)
}

func draftSection(b *strings.Builder, draft *models.Draft) {
	if draft == nil {
		return
	}
	fmt.Fprintf(b, "## Draft %s\n%s\n\n", draft.VersionLabel(), draft.Content)
}

func archivistPrompt(in Input) string {
	var b strings.Builder
	header(&b, in)
	b.WriteString("Write the scene brief for this chapter.\n")
	return b.String()
}

func writerPrompt(in Input) string {
	var b strings.Builder
	header(&b, in)
	if in.Brief != nil {
		yamlSection(&b, "Scene Brief", in.Brief)
	}
	b.WriteString("Write the chapter.\n")
	return b.String()
}

func reviewerPrompt(in Input) string {
	var b strings.Builder
	header(&b, in)
	if in.Brief != nil {
		yamlSection(&b, "Scene Brief", in.Brief)
	}
	draftSection(&b, in.Draft)
	b.WriteString("Review the draft.\n")
	return b.String()
}

func editorPrompt(in Input) string {
	var b strings.Builder
	header(&b, in)
	draftSection(&b, in.Draft)
	if in.Review != nil {
		yamlSection(&b, "Review", in.Review)
	}
	if len(in.Conflicts) > 0 {
		yamlSection(&b, "Canon Conflicts", in.Conflicts)
	}
	b.WriteString("Produce the final version of the chapter.\n")
	return b.String()
}

func summarizerPrompt(in Input) string {
	var b strings.Builder
	header(&b, in)
	draftSection(&b, in.Draft)
	b.WriteString("Summarize the chapter.\n")
	return b.String()
}

func parseBrief(content string, in Input, _ *slog.Logger) (Output, error) {
	block, _ := extractBlock(content)
	var brief models.SceneBrief
	if err := decodeYAML(block, &brief); err != nil {
		return Output{}, errors.Wrap(err, "decode scene brief")
	}
	brief.Chapter = in.ChapterID
	if brief.Goal == "" {
		brief.Goal = in.Goal
	}
	if len(brief.Characters) == 0 {
		brief.Characters = in.Characters
	}
	if brief.Title == "" && len(brief.Beats) == 0 {
		return Output{}, errors.New("scene brief has neither title nor beats")
	}
	return Output{Brief: &brief}, nil
}

type canonUpdates struct {
	Facts []struct {
		ID         string   `yaml:"id"`
		Statement  string   `yaml:"statement"`
		Confidence *float64 `yaml:"confidence"`
	} `yaml:"facts"`
	TimelineEvents  []models.TimelineEvent  `yaml:"timeline_events"`
	CharacterStates []models.CharacterState `yaml:"character_states"`
}

type draftAppendix struct {
	CanonUpdates         canonUpdates `yaml:"canon_updates"`
	PendingConfirmations []string     `yaml:"pending_confirmations"`
}

func parseDraft(content string, in Input, logger *slog.Logger) (Output, error) {
	prose, block, found := splitTrailingBlock(content)
	if prose == "" {
		return Output{}, errors.New("draft is empty")
	}
	out := Output{Text: prose}
	if !found {
		return out, nil
	}
	var appendix draftAppendix
	if err := decodeYAML(block, &appendix); err != nil {
		return Output{}, errors.Wrap(err, "decode canon updates")
	}
	out.Canon = canonBatch(in.ChapterID, appendix.CanonUpdates, logger)
	out.PendingConfirmations = appendix.PendingConfirmations
	return out, nil
}

// canonBatch stamps proposed records with the chapter they are sourced from. Records missing required fields are
// skipped.
func canonBatch(chapterID string, updates canonUpdates, logger *slog.Logger) models.CanonBatch {
	var batch models.CanonBatch
	seen := make(map[string]bool, len(updates.Facts))
	for i, f := range updates.Facts {
		if strings.TrimSpace(f.Statement) == "" {
			logger.Warn("skipping fact without statement", slog.Int("index", i))
			continue
		}
		fact := models.Fact{
			ID:           factID(chapterID, f.ID, i),
			Statement:    strings.TrimSpace(f.Statement),
			Source:       chapterID,
			IntroducedIn: chapterID,
			Confidence:   1,
		}
		if seen[fact.ID] {
			fact.ID = fmt.Sprintf("%s-%d", fact.ID, i+1)
		}
		seen[fact.ID] = true
		if f.Confidence != nil {
			fact.Confidence = min(max(*f.Confidence, 0), 1)
		}
		batch.Facts = append(batch.Facts, fact)
	}
	for i, e := range updates.TimelineEvents {
		if len(e.Participants) == 0 || strings.TrimSpace(e.Event) == "" {
			logger.Warn("skipping timeline event without participants", slog.Int("index", i))
			continue
		}
		e.Source = chapterID
		batch.TimelineEvents = append(batch.TimelineEvents, e)
	}
	for i, s := range updates.CharacterStates {
		if strings.TrimSpace(s.Character) == "" {
			logger.Warn("skipping character state without character", slog.Int("index", i))
			continue
		}
		if s.LastSeen == "" {
			s.LastSeen = chapterID
		}
		s.Source = chapterID
		batch.CharacterStates = append(batch.CharacterStates, s)
	}
	return batch
}

// factID namespaces a proposed fact ID under its chapter. Fact IDs are unique per project while models tend to
// number facts from F001 in every chapter.
func factID(chapterID, proposed string, index int) string {
	id := strings.TrimSpace(proposed)
	switch {
	case id == "":
		return fmt.Sprintf("%s-F%02d", chapterID, index+1)
	case strings.HasPrefix(id, chapterID+"-"):
		return id
	default:
		return chapterID + "-" + id
	}
}

func parseReview(content string, in Input, _ *slog.Logger) (Output, error) {
	block, _ := extractBlock(content)
	var review models.ReviewResult
	if err := decodeYAML(block, &review); err != nil {
		return Output{}, errors.Wrap(err, "decode review")
	}
	if review.Verdict == "" && len(review.Issues) == 0 && len(review.Strengths) == 0 {
		return Output{}, errors.New("review has no verdict, issues or strengths")
	}
	review.Chapter = in.ChapterID
	if in.Draft != nil {
		review.DraftVersion = in.Draft.Version
	}
	return Output{Review: &review}, nil
}

func parseFinal(content string, _ Input, _ *slog.Logger) (Output, error) {
	text := strings.TrimSpace(content)
	// Some models wrap prose in a fence despite the instructions.
	if block, fenced := extractBlock(text); fenced && strings.HasPrefix(text, "```") {
		text = block
	}
	if text == "" {
		return Output{}, errors.New("final draft is empty")
	}
	return Output{Text: text}, nil
}

func parseSummary(content string, in Input, _ *slog.Logger) (Output, error) {
	block, _ := extractBlock(content)
	var summary models.ChapterSummary
	if err := decodeYAML(block, &summary); err != nil {
		return Output{}, errors.Wrap(err, "decode summary")
	}
	if strings.TrimSpace(summary.BriefSummary) == "" {
		return Output{}, errors.New("summary has no brief_summary")
	}
	summary.Chapter = in.ChapterID
	if summary.Title == "" {
		summary.Title = in.ChapterID
	}
	if in.Draft != nil {
		summary.WordCount = in.Draft.WordCount
	}
	return Output{Summary: &summary}, nil
}
