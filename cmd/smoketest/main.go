package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/inkwell/internal/e2etest"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/orchestrator"
)

// TestPipeline runs one chapter through the pipeline in a throwaway project.
func TestPipeline(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute) //nolint:mnd // real providers are slow
	defer cancel()
	var err error

	projectID := "smoketest-" + uuid.NewString()
	if _, err = client.CreateProject(ctx, projectID, "Smoke test", "Created by the smoke test"); err != nil {
		return errors.Wrap(err, "create project")
	}
	var runID string
	if runID, err = client.StartRun(ctx, projectID, "ch01", "主角在雨夜发现一张纸条", nil); err != nil {
		return errors.Wrap(err, "start run")
	}
	var events []orchestrator.Event
	if events, err = client.Events(ctx, projectID, "ch01", runID); err != nil {
		return errors.Wrap(err, "stream events")
	}
	if len(events) == 0 {
		return errors.New("no events received")
	}
	if last := events[len(events)-1]; last.Kind != orchestrator.EventRunCompleted {
		return errors.New("run did not complete", slog.String("kind", string(last.Kind)),
			slog.String("message", last.Message))
	}
	view, err := client.Dashboard(ctx, projectID)
	if err != nil {
		return errors.Wrap(err, "get dashboard")
	}
	if len(view.Chapters) != 1 || view.Chapters[0].State != models.StateSummarized {
		return errors.New("chapter missing from dashboard")
	}
	return nil
}

func main() {
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   = e2etest.NewClient(url)
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "server not ready", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestPipeline(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing pipeline", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
