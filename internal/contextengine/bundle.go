package contextengine

import (
	"fmt"
	"strings"

	"github.com/myrjola/inkwell/internal/cards"
	"github.com/myrjola/inkwell/internal/models"
	"gopkg.in/yaml.v3"
)

// Bundle is everything a chapter's stages are generated against. It is persisted once per pipeline run.
type Bundle struct {
	ProjectID         string                  `json:"project_id"`
	ChapterID         string                  `json:"chapter_id"`
	Style             *cards.StyleCard        `json:"style,omitempty"`
	Rules             *cards.RulesCard        `json:"rules,omitempty"`
	Characters        []cards.CharacterCard   `json:"characters"`
	World             []cards.WorldCard       `json:"world"`
	Facts             []models.Fact           `json:"facts"`
	Timeline          []models.TimelineEvent  `json:"timeline"`
	CharacterStates   []models.CharacterState `json:"character_states"`
	PreviousSummaries Tiers                   `json:"previous_summaries"`
}

// Render formats the bundle as prompt context. Empty sections are omitted.
func (b *Bundle) Render() string {
	var sb strings.Builder
	section := func(title string, v any) {
		body, err := yaml.Marshal(v)
		if err != nil {
			body = []byte(fmt.Sprintf("%v\n", v))
		}
		fmt.Fprintf(&sb, "## %s\n%s\n", title, body)
	}

	if b.Style != nil {
		section("Style / 文风", b.Style)
	}
	if b.Rules != nil {
		section("Rules / 规则", b.Rules)
	}
	if len(b.Characters) > 0 {
		section("Characters / 角色", b.Characters)
	}
	if len(b.World) > 0 {
		section("World / 世界观", b.World)
	}
	if len(b.Facts) > 0 {
		facts := make([]string, 0, len(b.Facts))
		for _, f := range b.Facts {
			facts = append(facts, fmt.Sprintf("[%s] %s (%s)", f.ID, f.Statement, f.IntroducedIn))
		}
		section("Facts / 事实", facts)
	}
	if len(b.Timeline) > 0 {
		section("Timeline / 时间线", b.Timeline)
	}
	if len(b.CharacterStates) > 0 {
		section("Character States / 角色状态", b.CharacterStates)
	}
	if blocks := b.PreviousSummaries.Blocks(); len(blocks) > 0 {
		sb.WriteString("## Previous Chapters / 前文摘要\n")
		for _, block := range blocks {
			sb.WriteString(block.Text)
			sb.WriteString("\n\n")
		}
	}
	return strings.TrimSpace(sb.String())
}
