package contextengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/models"
)

// Tier is the level of detail a previous chapter is included with.
type Tier string

const (
	TierNear Tier = "near"
	TierMid  Tier = "mid"
	TierFar  Tier = "far"
)

const maxNearItems = 6

// SummaryBlock is a rendered previous-chapter summary.
type SummaryBlock struct {
	Chapter string `json:"chapter"`
	Tier    Tier   `json:"tier"`
	Text    string `json:"text"`
}

// Tiers holds the selected summary blocks per tier, each in chronological order.
type Tiers struct {
	Far  []SummaryBlock `json:"far"`
	Mid  []SummaryBlock `json:"mid"`
	Near []SummaryBlock `json:"near"`
}

// Blocks returns far, mid and near blocks concatenated, which is chronological order.
func (t Tiers) Blocks() []SummaryBlock {
	blocks := make([]SummaryBlock, 0, len(t.Far)+len(t.Mid)+len(t.Near))
	blocks = append(blocks, t.Far...)
	blocks = append(blocks, t.Mid...)
	return append(blocks, t.Near...)
}

// Len is the total rune count of all block texts.
func (t Tiers) Len() int {
	return blocksLen(t.Far) + blocksLen(t.Mid) + blocksLen(t.Near)
}

// SelectTiered picks summaries of chapters before currentChapter, spending tier capacity on the nearest chapters
// first. It reports false when currentChapter has no chapter number.
func SelectTiered(currentChapter string, summaries []models.ChapterSummary, cfg config.ContextConfig) (Tiers, bool) {
	current, ok := models.ChapterNumber(currentChapter)
	if !ok {
		return Tiers{}, false
	}

	type candidate struct {
		number  int
		summary models.ChapterSummary
	}
	var candidates []candidate
	for _, summary := range summaries {
		n, parsed := models.ChapterNumber(summary.Chapter)
		if parsed && n < current {
			candidates = append(candidates, candidate{number: n, summary: summary})
		}
	}
	// Nearest first.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].number > candidates[j].number })

	var tiers Tiers
	for _, c := range candidates {
		dist := current - c.number
		switch {
		case dist <= cfg.NearWindow && len(tiers.Near) < cfg.MaxNear:
			tiers.Near = append(tiers.Near, NearBlock(c.summary))
		case dist <= cfg.MidWindow && len(tiers.Mid) < cfg.MaxMid:
			tiers.Mid = append(tiers.Mid, MidBlock(c.summary))
		case len(tiers.Far) < cfg.MaxFar:
			tiers.Far = append(tiers.Far, FarBlock(c.summary))
		}
	}
	reverse(tiers.Near)
	reverse(tiers.Mid)
	reverse(tiers.Far)
	return tiers, true
}

// NearBlock renders the title, brief summary, key events and open loops of a chapter.
func NearBlock(s models.ChapterSummary) SummaryBlock {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n%s\n", s.Chapter, s.Title, s.BriefSummary)
	b.WriteString("Key Events / 关键事件:\n")
	writeList(&b, s.KeyEvents)
	b.WriteString("\nOpen Loops / 未解悬念:\n")
	writeList(&b, s.OpenLoops)
	return SummaryBlock{Chapter: s.Chapter, Tier: TierNear, Text: b.String()}
}

// MidBlock renders the title and brief summary of a chapter.
func MidBlock(s models.ChapterSummary) SummaryBlock {
	return SummaryBlock{Chapter: s.Chapter, Tier: TierMid, Text: fmt.Sprintf("%s: %s\n%s", s.Chapter, s.Title, s.BriefSummary)}
}

// FarBlock renders only the title of a chapter.
func FarBlock(s models.ChapterSummary) SummaryBlock {
	return SummaryBlock{Chapter: s.Chapter, Tier: TierFar, Text: fmt.Sprintf("%s: %s", s.Chapter, s.Title)}
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("-")
		return
	}
	items = items[:min(len(items), maxNearItems)]
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + item)
	}
}

func reverse(blocks []SummaryBlock) {
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
}
