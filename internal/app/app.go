// Package app wires the stores, the generator and the pipeline from configuration. The binaries share it.
package app

import (
	"context"
	"log/slog"

	"github.com/myrjola/inkwell/internal/agents"
	"github.com/myrjola/inkwell/internal/ai"
	"github.com/myrjola/inkwell/internal/cards"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/conflict"
	"github.com/myrjola/inkwell/internal/contextengine"
	"github.com/myrjola/inkwell/internal/dashboard"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/orchestrator"
	"github.com/myrjola/inkwell/internal/repositories"
	"github.com/myrjola/inkwell/internal/sqlite"
)

type App struct {
	Config       *config.Config
	DB           *sqlite.Database
	Projects     *repositories.ProjectRepository
	Chapters     *repositories.ChapterRepository
	Canon        *repositories.CanonRepository
	Cards        *cards.FileStore
	Orchestrator *orchestrator.Orchestrator
	Dashboard    *dashboard.Aggregator
}

// New opens the database and builds the pipeline. The database optimizer stops when ctx is cancelled.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	generator, err := ai.New(cfg.LLM, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create generator")
	}
	return NewWithGenerator(ctx, cfg, generator, logger)
}

// NewWithGenerator is like [New] but uses the given generator.
func NewWithGenerator(ctx context.Context, cfg *config.Config, generator ai.Generator, logger *slog.Logger) (*App, error) {
	db, err := sqlite.NewDatabase(ctx, cfg.Storage.SqliteURL, logger)
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "open database")
	}

	a := &App{
		Config:       cfg,
		DB:           db,
		Projects:     repositories.NewProjectRepository(db, logger),
		Chapters:     repositories.NewChapterRepository(db, logger),
		Canon:        repositories.NewCanonRepository(db, logger),
		Cards:        cards.NewFileStore(cfg.Storage.CardsDir, logger),
		Orchestrator: nil,
		Dashboard:    nil,
	}
	team, err := agents.NewTeam(generator, cfg.LLM, logger)
	if err != nil {
		return nil, errors.Join(errors.Wrap(err, "create agents"), db.Close())
	}
	selector := contextengine.NewSelector(a.Cards, a.Canon, a.Chapters, cfg.Context, logger)
	detector := conflict.NewDetector(conflict.NewHeuristicScorer(cfg.Conflict))
	if a.Orchestrator, err = orchestrator.New(a.Projects, a.Chapters, a.Canon, selector, detector, team,
		logger); err != nil {
		return nil, errors.Join(errors.Wrap(err, "create orchestrator"), db.Close())
	}
	a.Dashboard = dashboard.NewAggregator(a.Projects, a.Chapters, a.Canon, cfg.Pipeline.Parallelism, logger)
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
