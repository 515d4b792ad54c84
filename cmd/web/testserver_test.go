package main

import (
	"context"
	"os"
	"testing"

	"github.com/myrjola/inkwell/internal/e2etest"
	"github.com/stretchr/testify/require"
)

func testEnviron(t *testing.T) []string {
	t.Helper()
	return []string{
		"INKWELL_ADDR=localhost:0",
		"INKWELL_SQLITE_URL=:memory:",
		"INKWELL_CARDS_DIR=" + t.TempDir(),
		"INKWELL_LLM_PROVIDER=mock",
	}
}

// startTestServer starts the server with a mock generator and an in-memory database. It is shut down when the test
// ends.
func startTestServer(t *testing.T) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	server, err := e2etest.StartServer(ctx, os.Stdout, testEnviron(t), run)
	if err != nil {
		cancel()
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		cancel()
		require.NoError(t, server.Wait())
	})
	return server
}
