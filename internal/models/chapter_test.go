package models_test

import (
	"testing"

	"github.com/myrjola/inkwell/internal/models"
	"github.com/stretchr/testify/require"
)

func TestChapterNumber(t *testing.T) {
	tests := []struct {
		chapterID string
		want      int
		wantOK    bool
	}{
		{chapterID: "ch1", want: 1, wantOK: true},
		{chapterID: "ch01", want: 1, wantOK: true},
		{chapterID: "chapter_1", want: 1, wantOK: true},
		{chapterID: "ch12-part3", want: 12, wantOK: true},
		{chapterID: "prologue", wantOK: false},
		{chapterID: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.chapterID, func(t *testing.T) {
			got, ok := models.ChapterNumber(tt.chapterID)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCanonSnapshot_LatestCharacterState(t *testing.T) {
	snapshot := models.CanonSnapshot{
		CharacterStates: []models.CharacterState{
			{Character: "李明", Location: "A市", LastSeen: "ch01"},
			{Character: "王芳", Location: "老家", LastSeen: "ch01"},
			{Character: "李明", Location: "B市", LastSeen: "ch02"},
		},
	}

	got := snapshot.LatestCharacterState("李明")
	require.NotNil(t, got)
	require.Equal(t, "B市", got.Location)
	require.Nil(t, snapshot.LatestCharacterState("张三"))

	latest := snapshot.LatestCharacterStates()
	require.Len(t, latest, 2)
	require.Equal(t, "李明", latest[0].Character)
	require.Equal(t, "B市", latest[0].Location)
	require.Equal(t, "王芳", latest[1].Character)
}

func TestCanonSnapshot_WithoutSource(t *testing.T) {
	snapshot := models.CanonSnapshot{
		Facts: []models.Fact{
			{ID: "F1", Statement: "a", Source: "ch01"},
			{ID: "F2", Statement: "b", Source: "ch02"},
		},
		TimelineEvents: []models.TimelineEvent{
			{Time: "t", Source: "ch02"},
		},
		CharacterStates: []models.CharacterState{
			{Character: "李明", LastSeen: "ch02", Source: "ch02"},
			{Character: "王芳", LastSeen: "ch02"},
			{Character: "张三", LastSeen: "ch02", Source: "ch01"},
		},
	}

	got := snapshot.WithoutSource("ch02")
	require.Len(t, got.Facts, 1)
	require.Equal(t, "F1", got.Facts[0].ID)
	require.Empty(t, got.TimelineEvents)
	require.Len(t, got.CharacterStates, 1)
	require.Equal(t, "张三", got.CharacterStates[0].Character)
}

func TestPipelineState_Ordinal(t *testing.T) {
	require.Equal(t, 0, models.StateNew.Ordinal())
	require.Equal(t, 7, models.StateSummarized.Ordinal())
	require.Equal(t, -1, models.StateFailed.Ordinal())
	require.True(t, models.StateSummarized.Terminal())
	require.False(t, models.StateFinalized.Terminal())
}

func TestDraft_VersionLabel(t *testing.T) {
	require.Equal(t, "v3", models.Draft{Version: 3}.VersionLabel())
}
