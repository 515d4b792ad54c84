package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/myrjola/inkwell/internal/app"
	"github.com/myrjola/inkwell/internal/broker"
	"github.com/myrjola/inkwell/internal/config"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/myrjola/inkwell/internal/orchestrator"
	"github.com/myrjola/inkwell/internal/pprofserver"
)

type application struct {
	logger *slog.Logger
	app    *app.App
	// runs publishes the progress events of pipeline runs under their run id.
	runs *broker.ChannelBroker[string, orchestrator.Event]
	// runCtx is the parent of background pipeline runs. It outlives requests and is cancelled by stopRuns when the
	// server shuts down.
	runCtx    context.Context
	stopRuns  context.CancelFunc
	runBuffer int
	inFlight  sync.WaitGroup
}

func run(ctx context.Context, logger *slog.Logger, environ []string) error {
	cfg, err := config.Load(environ)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	if cfg.Server.PprofAddr != "" {
		pprofserver.Launch(ctx, cfg.Server.PprofAddr, logger)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return errors.Wrap(err, "open application")
	}
	runs := broker.NewChannelBroker[string, orchestrator.Event]()
	brokerCtx, stopBroker := context.WithCancel(ctx)
	defer stopBroker()
	go runs.Start(brokerCtx)

	runCtx, stopRuns := context.WithCancel(ctx)
	defer stopRuns()

	webApp := &application{
		logger:    logger,
		app:       a,
		runs:      runs,
		runCtx:    runCtx,
		stopRuns:  stopRuns,
		runBuffer: cfg.Server.RunBuffer,
		inFlight:  sync.WaitGroup{},
	}

	err = webApp.configureAndStartServer(ctx, cfg.Server.Addr)
	stopRuns()
	webApp.inFlight.Wait()
	return errors.Join(err, a.Close())
}

func main() {
	ctx := context.Background()
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   true,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	})))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.LogAttrs(ctx, slog.LevelError, "failure loading .env", errors.SlogError(err))
		os.Exit(1)
	}

	if err := run(ctx, logger, os.Environ()); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
