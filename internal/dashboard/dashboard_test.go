package dashboard_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/myrjola/inkwell/internal/dashboard"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/repositories"
	"github.com/myrjola/inkwell/internal/sqlite/sqlitetest"
	"github.com/myrjola/inkwell/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyChapters fails summary lookups of one chapter.
type flakyChapters struct {
	*repositories.ChapterRepository
	brokenChapter string
}

func (f flakyChapters) GetSummary(ctx context.Context, projectID, chapterID string) (*models.ChapterSummary, error) {
	if chapterID == f.brokenChapter {
		return nil, errors.Wrap(errors.ErrStorage, "disk on fire")
	}
	return f.ChapterRepository.GetSummary(ctx, projectID, chapterID)
}

type brokenCanon struct{}

func (brokenCanon) Snapshot(context.Context, string) (*models.CanonSnapshot, error) {
	return nil, errors.Wrap(errors.ErrStorage, "canon unavailable")
}

type fixture struct {
	projects *repositories.ProjectRepository
	chapters *repositories.ChapterRepository
	canon    *repositories.CanonRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	logger := testhelpers.NewTestLogger(t)
	db := sqlitetest.NewDatabase(t)
	f := fixture{
		projects: repositories.NewProjectRepository(db, logger),
		chapters: repositories.NewChapterRepository(db, logger),
		canon:    repositories.NewCanonRepository(db, logger),
	}
	_, err := f.projects.Create(ctx, "demo", "Demo", "雨夜故事")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		chapter := fmt.Sprintf("ch%02d", i)
		draft, err := f.chapters.SaveDraft(ctx, "demo", chapter, "一二三四五", nil)
		require.NoError(t, err)
		if i == 3 {
			// ch03 is still in progress.
			require.NoError(t, f.chapters.SavePipelineRecord(ctx, models.PipelineRecord{
				ProjectID: "demo", ChapterID: chapter, RunID: "run", State: models.StateDrafted,
				LastCompleted: models.StateDrafted, DraftVersion: draft.Version,
			}))
			continue
		}
		require.NoError(t, f.chapters.SetFinal(ctx, "demo", chapter, draft.Version))
		require.NoError(t, f.chapters.SaveSummary(ctx, "demo", models.ChapterSummary{
			Chapter: chapter, Title: "title " + chapter, BriefSummary: "brief " + chapter,
		}))
		conflicts := make([]string, 0, 3*i)
		for j := 0; j < 3*i; j++ {
			conflicts = append(conflicts, fmt.Sprintf("conflict %d", j))
		}
		require.NoError(t, f.chapters.SaveConflictReport(ctx, "demo", models.ConflictReport{
			Chapter: chapter, Conflicts: conflicts,
		}))
		require.NoError(t, f.canon.CommitChapter(ctx, "demo", chapter, models.CanonBatch{
			Facts: []models.Fact{
				{ID: chapter + "-F01", Statement: "a", Source: chapter, IntroducedIn: chapter, Confidence: 1},
				{ID: chapter + "-F02", Statement: "b", Source: chapter, IntroducedIn: chapter, Confidence: 1},
				{ID: chapter + "-F03", Statement: "c", Source: chapter, IntroducedIn: chapter, Confidence: 1},
			},
			TimelineEvents: []models.TimelineEvent{
				{Time: "t", Event: "e", Participants: []string{"林雨"}, Source: chapter},
			},
			CharacterStates: []models.CharacterState{
				{Character: "林雨", LastSeen: chapter},
				{Character: "周警官", LastSeen: chapter},
			},
		}))
	}
	return f
}

func TestAggregator_Project(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	aggregator := dashboard.NewAggregator(f.projects, f.chapters, f.canon, 2, testhelpers.NewTestLogger(t))

	view, err := aggregator.Project(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "雨夜故事", view.Project.Description)
	assert.Equal(t, dashboard.Stats{
		TotalWords:         10,
		CompletedChapters:  2,
		InProgressChapters: 1,
		Characters:         2,
		Facts:              6,
		TimelineEvents:     2,
		CharacterStates:    4,
	}, view.Stats)

	require.Len(t, view.Chapters, 3)
	assert.Equal(t, dashboard.ChapterItem{
		Chapter:          "ch01",
		Final:            true,
		WordCount:        5,
		Title:            "title ch01",
		BriefSummary:     "brief ch01",
		ConflictCount:    3,
		ConflictPreviews: []string{"conflict 0", "conflict 1", "conflict 2"},
		State:            "",
	}, view.Chapters[0])
	assert.Equal(t, 6, view.Chapters[1].ConflictCount)
	assert.Len(t, view.Chapters[1].ConflictPreviews, 5)
	assert.Equal(t, dashboard.ChapterItem{
		Chapter: "ch03",
		State:   models.StateDrafted,
	}, view.Chapters[2])

	require.Len(t, view.RecentFacts, 5)
	assert.Equal(t, "ch01-F02", view.RecentFacts[0].ID)
	assert.Equal(t, "ch02-F03", view.RecentFacts[4].ID)
	assert.Len(t, view.RecentEvents, 2)
}

func TestAggregator_degradesGracefully(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	chapters := flakyChapters{ChapterRepository: f.chapters, brokenChapter: "ch02"}
	aggregator := dashboard.NewAggregator(f.projects, chapters, brokenCanon{}, 1, testhelpers.NewTestLogger(t))

	view, err := aggregator.Project(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, view.Chapters, 3)
	assert.Equal(t, "title ch01", view.Chapters[0].Title)
	assert.Empty(t, view.Chapters[1].Title)
	assert.True(t, view.Chapters[1].Final)
	assert.Equal(t, 6, view.Chapters[1].ConflictCount)
	assert.Equal(t, 2, view.Stats.CompletedChapters)
	assert.Zero(t, view.Stats.Facts)
	assert.Empty(t, view.RecentFacts)
}

func TestAggregator_missingProject(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	aggregator := dashboard.NewAggregator(f.projects, f.chapters, f.canon, 2, testhelpers.NewTestLogger(t))

	_, err := aggregator.Project(context.Background(), "missing")
	require.ErrorIs(t, err, errors.ErrNotFound)
}
