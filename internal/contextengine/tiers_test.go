package contextengine_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/contextengine"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/stretchr/testify/require"
)

var defaultContextConfig = config.ContextConfig{
	NearWindow:      2,
	MidWindow:       5,
	MaxNear:         2,
	MaxMid:          3,
	MaxFar:          5,
	MaxSummaryChars: 6000,
	TimelineWindow:  3,
	TimelineMax:     10,
}

func chapterSummaries(n int) []models.ChapterSummary {
	summaries := make([]models.ChapterSummary, 0, n)
	for i := 1; i <= n; i++ {
		summaries = append(summaries, models.ChapterSummary{
			Chapter:      fmt.Sprintf("ch%02d", i),
			Title:        fmt.Sprintf("Title %d", i),
			BriefSummary: fmt.Sprintf("Brief %d", i),
			KeyEvents:    []string{fmt.Sprintf("event %d", i)},
			OpenLoops:    nil,
		})
	}
	return summaries
}

func chapters(blocks []contextengine.SummaryBlock) []string {
	out := []string{}
	for _, b := range blocks {
		out = append(out, b.Chapter)
	}
	return out
}

func TestSelectTiered(t *testing.T) {
	t.Parallel()
	// Storage order must not matter.
	summaries := chapterSummaries(10)
	summaries[0], summaries[9] = summaries[9], summaries[0]

	tiers, ok := contextengine.SelectTiered("ch08", summaries, defaultContextConfig)
	require.True(t, ok)

	got := map[string][]string{
		"near": chapters(tiers.Near),
		"mid":  chapters(tiers.Mid),
		"far":  chapters(tiers.Far),
	}
	want := map[string][]string{
		"near": {"ch06", "ch07"},
		"mid":  {"ch03", "ch04", "ch05"},
		"far":  {"ch01", "ch02"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SelectTiered() mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"ch01", "ch02", "ch03", "ch04", "ch05", "ch06", "ch07"}, chapters(tiers.Blocks()))

	require.Equal(t, "ch07: Title 7\nBrief 7\nKey Events / 关键事件:\n- event 7\nOpen Loops / 未解悬念:\n-",
		tiers.Near[1].Text)
	require.Equal(t, "ch05: Title 5\nBrief 5", tiers.Mid[2].Text)
	require.Equal(t, "ch01: Title 1", tiers.Far[0].Text)
}

func TestSelectTiered_capsFavourRecentChapters(t *testing.T) {
	t.Parallel()
	cfg := defaultContextConfig
	cfg.MaxFar = 2

	tiers, ok := contextengine.SelectTiered("ch20", chapterSummaries(19), cfg)
	require.True(t, ok)
	require.Equal(t, []string{"ch18", "ch19"}, chapters(tiers.Near))
	require.Equal(t, []string{"ch15", "ch16", "ch17"}, chapters(tiers.Mid))
	require.Equal(t, []string{"ch13", "ch14"}, chapters(tiers.Far))
}

func TestSelectTiered_overflowFallsThroughTiers(t *testing.T) {
	t.Parallel()
	cfg := defaultContextConfig
	cfg.MaxNear = 1

	tiers, ok := contextengine.SelectTiered("ch03", chapterSummaries(2), cfg)
	require.True(t, ok)
	require.Equal(t, []string{"ch02"}, chapters(tiers.Near))
	require.Equal(t, []string{"ch01"}, chapters(tiers.Mid), "distance 2 overflows into the mid tier")
}

func TestSelectTiered_unparsableChapter(t *testing.T) {
	t.Parallel()
	_, ok := contextengine.SelectTiered("prologue", chapterSummaries(3), defaultContextConfig)
	require.False(t, ok)

	summaries := append(chapterSummaries(2), models.ChapterSummary{Chapter: "interlude", Title: "x"})
	tiers, ok := contextengine.SelectTiered("ch03", summaries, defaultContextConfig)
	require.True(t, ok)
	require.NotContains(t, chapters(tiers.Blocks()), "interlude")
}

func TestNearBlock_capsListItems(t *testing.T) {
	t.Parallel()
	summary := models.ChapterSummary{
		Chapter:      "ch01",
		Title:        "t",
		BriefSummary: "b",
		KeyEvents:    []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		OpenLoops:    []string{"loop"},
	}
	text := contextengine.NearBlock(summary).Text
	require.Contains(t, text, "- 6")
	require.NotContains(t, text, "- 7")
	require.True(t, strings.HasSuffix(text, "Open Loops / 未解悬念:\n- loop"))
}
