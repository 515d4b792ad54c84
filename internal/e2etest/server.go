package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
)

type Server struct {
	url     string
	client  *Client
	stopped chan struct{}
	err     error
}

// LogAddrKey is the key used to log the address the server is listening on.
const LogAddrKey = "Addr"

// StartServer starts the test server, waits for it to be ready, and return the server URL for testing. The server
// runs until ctx is cancelled.
//
// logSink is the writer to which the server logs are written. You usually want to use [io.Discard].
// environ is the environment of the server as "KEY=value" pairs.
// run is the function that starts the server. We expect the server to log the address it's listening on to
// [LogAddrKey].
func StartServer(
	ctx context.Context,
	logSink io.Writer,
	environ []string,
	run func(context.Context, *slog.Logger, []string) error,
) (*Server, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	// We need to grab the dynamically allocated port from the log output.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == LogAddrKey {
				select {
				case addrCh <- a.Value.String():
				default:
				}
			}
			return a
		},
	})))

	s := &Server{url: "", client: nil, stopped: make(chan struct{}), err: nil}
	// Start the server and wait for it to be ready.
	go func() {
		defer close(s.stopped)
		if err := run(ctx, logger, environ); err != nil {
			s.err = err
			cancel(err)
		}
	}()
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(context.Cause(ctx), "server stopped before ready")
	case addr := <-addrCh:
		s.url = fmt.Sprintf("http://%s", addr)
		s.client = NewClient(s.url)
		if err := s.client.WaitForReady(ctx, "/api/healthy"); err != nil {
			return nil, errors.Wrap(err, "wait for ready")
		}
		return s, nil
	}
}

func (s *Server) Client() *Client {
	return s.client
}

func (s *Server) URL() string {
	return s.url
}

// Wait blocks until the server has stopped and returns the error it stopped with.
func (s *Server) Wait() error {
	<-s.stopped
	return s.err
}
