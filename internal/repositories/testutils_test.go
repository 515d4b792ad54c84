package repositories_test

import (
	"context"
	"io"
	"testing"

	"github.com/myrjola/inkwell/internal/repositories"
	"github.com/myrjola/inkwell/internal/sqlite"
	"github.com/myrjola/inkwell/internal/sqlite/sqlitetest"
	"github.com/myrjola/inkwell/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	projects *repositories.ProjectRepository
	canon    *repositories.CanonRepository
	chapters *repositories.ChapterRepository
}

func newTestRepos(t *testing.T, db *sqlite.Database) testRepos {
	t.Helper()
	logger := testhelpers.NewLogger(io.Discard)
	return testRepos{
		projects: repositories.NewProjectRepository(db, logger),
		canon:    repositories.NewCanonRepository(db, logger),
		chapters: repositories.NewChapterRepository(db, logger),
	}
}

// newTestProject creates an in-memory database with a single project called "demo".
func newTestProject(t *testing.T) testRepos {
	t.Helper()
	repos := newTestRepos(t, sqlitetest.NewDatabase(t))
	_, err := repos.projects.Create(context.Background(), "demo", "Demo novel", "")
	require.NoError(t, err)
	return repos
}
