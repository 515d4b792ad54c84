package app_test

import (
	"context"
	"testing"

	"github.com/myrjola/inkwell/internal/app"
	"github.com/myrjola/inkwell/internal/cards"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/orchestrator"
	"github.com/myrjola/inkwell/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_endToEnd(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg, err := config.Load([]string{
		"INKWELL_SQLITE_URL=:memory:",
		"INKWELL_CARDS_DIR=" + t.TempDir(),
		"INKWELL_LLM_PROVIDER=mock",
	})
	require.NoError(t, err)
	a, err := app.New(ctx, cfg, testhelpers.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	_, err = a.Projects.Create(ctx, "demo", "Demo", "")
	require.NoError(t, err)
	require.NoError(t, a.Cards.SaveCharacterCard(ctx, "demo", cards.CharacterCard{Name: "林雨", Identity: "记者"}))

	for _, chapter := range []string{"ch01", "ch02"} {
		record, runErr := a.Orchestrator.Run(ctx, orchestrator.Request{
			ProjectID:  "demo",
			ChapterID:  chapter,
			Goal:       "调查纸条",
			Characters: []string{"林雨"},
		})
		require.NoError(t, runErr)
		assert.Equal(t, models.StateSummarized, record.State)
	}

	view, err := a.Dashboard.Project(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Stats.CompletedChapters)
	assert.Equal(t, 2, view.Stats.Facts)
	require.Len(t, view.Chapters, 2)
	assert.Equal(t, "ch02 雨夜", view.Chapters[1].Title)
	assert.Equal(t, models.StateSummarized, view.Chapters[1].State)
}

func TestNew_missingAPIKey(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load([]string{"INKWELL_SQLITE_URL=:memory:", "INKWELL_LLM_PROVIDER=openai"})
	require.NoError(t, err)
	_, err = app.New(context.Background(), cfg, testhelpers.NewTestLogger(t))
	require.Error(t, err)
}
