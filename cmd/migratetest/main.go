package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/repositories"
	"github.com/myrjola/inkwell/internal/sqlite"
	"github.com/myrjola/inkwell/internal/testhelpers"
)

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	var (
		err       error
		start     = time.Now()
		ctx       context.Context
		sqliteURL string
		ok        bool
		cancel    context.CancelFunc
	)
	ctx = context.Background()
	ctx, cancel = context.WithTimeout(ctx, 5*time.Second) //nolint:mnd // 5 seconds

	if sqliteURL, ok = os.LookupEnv("INKWELL_SQLITE_URL"); !ok {
		logger.LogAttrs(ctx, slog.LevelError, "INKWELL_SQLITE_URL not set")
		os.Exit(1)
	}

	var db *sqlite.Database
	if db, err = sqlite.NewDatabase(ctx, sqliteURL, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating database",
			slog.String("url", sqliteURL), errors.SlogError(err))
		os.Exit(1)
	}

	// Fetch the number of projects and summarized chapters through the repositories as a simple smoke test.
	projects, err := repositories.NewProjectRepository(db, logger).List(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error listing projects", errors.SlogError(err))
		os.Exit(1)
	}
	if len(projects) == 0 {
		logger.LogAttrs(ctx, slog.LevelError, "no projects found, something is likely wrong")
		os.Exit(1)
	}
	chapters := repositories.NewChapterRepository(db, logger)
	summaries := 0
	for _, p := range projects {
		var s []models.ChapterSummary
		if s, err = chapters.ListSummaries(ctx, p.ID); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "error listing summaries",
				slog.String("project_id", p.ID), errors.SlogError(err))
			os.Exit(1)
		}
		summaries += len(s)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "project count",
		slog.Int("projects", len(projects)), slog.Int("summaries", summaries))

	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
	os.Exit(0)
}
