// Package dashboard aggregates a project overview from the stores.
//
// Aggregation degrades gracefully: a lookup that fails is logged and the affected item is left out, so that one broken
// artifact never hides the rest of the project.
package dashboard

import (
	"context"
	"log/slog"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	conflictPreviews = 5
	recentItems      = 5
)

type ProjectReader interface {
	Get(ctx context.Context, id string) (*models.Project, error)
}

type ChapterReader interface {
	ListChapters(ctx context.Context, projectID string) ([]string, error)
	GetFinal(ctx context.Context, projectID, chapterID string) (*models.Draft, error)
	GetSummary(ctx context.Context, projectID, chapterID string) (*models.ChapterSummary, error)
	GetConflictReport(ctx context.Context, projectID, chapterID string) (*models.ConflictReport, error)
	GetPipelineRecord(ctx context.Context, projectID, chapterID string) (*models.PipelineRecord, error)
}

type CanonReader interface {
	Snapshot(ctx context.Context, projectID string) (*models.CanonSnapshot, error)
}

type Stats struct {
	TotalWords         int `json:"total_words"`
	CompletedChapters  int `json:"completed_chapters"`
	InProgressChapters int `json:"in_progress_chapters"`
	Characters         int `json:"characters"`
	Facts              int `json:"facts"`
	TimelineEvents     int `json:"timeline_events"`
	CharacterStates    int `json:"character_states"`
}

// ChapterItem is one chapter of the overview. Fields of failed or missing lookups keep their zero value.
type ChapterItem struct {
	Chapter          string               `json:"chapter"`
	Final            bool                 `json:"final"`
	WordCount        int                  `json:"word_count"`
	Title            string               `json:"title,omitempty"`
	BriefSummary     string               `json:"brief_summary,omitempty"`
	ConflictCount    int                  `json:"conflict_count"`
	ConflictPreviews []string             `json:"conflict_previews,omitempty"`
	State            models.PipelineState `json:"state,omitempty"`
}

type View struct {
	Project      models.Project         `json:"project"`
	Stats        Stats                  `json:"stats"`
	Chapters     []ChapterItem          `json:"chapters"`
	RecentFacts  []models.Fact          `json:"recent_facts"`
	RecentEvents []models.TimelineEvent `json:"recent_events"`
}

type Aggregator struct {
	projects    ProjectReader
	chapters    ChapterReader
	canon       CanonReader
	parallelism int
	logger      *slog.Logger
}

// NewAggregator returns an aggregator that looks up at most parallelism chapters at once.
func NewAggregator(
	projects ProjectReader,
	chapters ChapterReader,
	canon CanonReader,
	parallelism int,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		projects:    projects,
		chapters:    chapters,
		canon:       canon,
		parallelism: max(parallelism, 1),
		logger:      logger.With("source", "Aggregator"),
	}
}

// Project builds the overview of a project. Only a missing project or an unreadable chapter list fail the call.
func (a *Aggregator) Project(ctx context.Context, projectID string) (*View, error) {
	project, err := a.projects.Get(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "get project")
	}
	chapterIDs, err := a.chapters.ListChapters(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "list chapters")
	}

	view := &View{
		Project:      *project,
		Stats:        Stats{},
		Chapters:     make([]ChapterItem, len(chapterIDs)),
		RecentFacts:  []models.Fact{},
		RecentEvents: []models.TimelineEvent{},
	}

	var g errgroup.Group
	g.SetLimit(a.parallelism)
	for i, chapterID := range chapterIDs {
		g.Go(func() error {
			view.Chapters[i] = a.chapterItem(ctx, projectID, chapterID)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range view.Chapters {
		if item.Final {
			view.Stats.CompletedChapters++
			view.Stats.TotalWords += item.WordCount
		} else {
			view.Stats.InProgressChapters++
		}
	}

	snapshot, err := a.canon.Snapshot(ctx, projectID)
	if err != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "omitting canon from dashboard",
			slog.String("project_id", projectID), errors.SlogError(err))
		return view, nil
	}
	view.Stats.Characters = len(snapshot.LatestCharacterStates())
	view.Stats.Facts = len(snapshot.Facts)
	view.Stats.TimelineEvents = len(snapshot.TimelineEvents)
	view.Stats.CharacterStates = len(snapshot.CharacterStates)
	view.RecentFacts = append(view.RecentFacts, last(snapshot.Facts, recentItems)...)
	view.RecentEvents = append(view.RecentEvents, last(snapshot.TimelineEvents, recentItems)...)
	return view, nil
}

func (a *Aggregator) chapterItem(ctx context.Context, projectID, chapterID string) ChapterItem {
	item := ChapterItem{Chapter: chapterID}
	if final, ok := lookup(ctx, a, "final draft", chapterID, func() (*models.Draft, error) {
		return a.chapters.GetFinal(ctx, projectID, chapterID)
	}); ok {
		item.Final = true
		item.WordCount = final.WordCount
	}
	if summary, ok := lookup(ctx, a, "summary", chapterID, func() (*models.ChapterSummary, error) {
		return a.chapters.GetSummary(ctx, projectID, chapterID)
	}); ok {
		item.Title = summary.Title
		item.BriefSummary = summary.BriefSummary
	}
	if report, ok := lookup(ctx, a, "conflict report", chapterID, func() (*models.ConflictReport, error) {
		return a.chapters.GetConflictReport(ctx, projectID, chapterID)
	}); ok {
		item.ConflictCount = len(report.Conflicts)
		item.ConflictPreviews = report.Conflicts[:min(len(report.Conflicts), conflictPreviews)]
	}
	if record, ok := lookup(ctx, a, "pipeline record", chapterID, func() (*models.PipelineRecord, error) {
		return a.chapters.GetPipelineRecord(ctx, projectID, chapterID)
	}); ok {
		item.State = record.State
	}
	return item
}

// lookup runs fetch and reports whether it produced a value. Failures other than absence are logged.
func lookup[T any](ctx context.Context, a *Aggregator, what, chapterID string, fetch func() (*T, error)) (*T, bool) {
	v, err := fetch()
	if err == nil {
		return v, true
	}
	if !errors.Is(err, errors.ErrNotFound) {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "omitting "+what+" from dashboard",
			slog.String("chapter_id", chapterID), errors.SlogError(err))
	}
	return nil, false
}

func last[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
