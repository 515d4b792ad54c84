package repositories_test

import (
	"context"
	"testing"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/stretchr/testify/require"
)

func TestProjectRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := newTestProject(t)

	_, err := repos.projects.Create(ctx, "sequel", "", "second book")
	require.NoError(t, err)

	project, err := repos.projects.Get(ctx, "sequel")
	require.NoError(t, err)
	require.Equal(t, "sequel", project.Name, "name defaults to id")
	require.Equal(t, "second book", project.Description)
	require.False(t, project.Created.IsZero())

	projects, err := repos.projects.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, "demo", projects[0].ID)

	_, err = repos.projects.Create(ctx, "sequel", "dup", "")
	require.ErrorIs(t, err, errors.ErrStorage)
	_, err = repos.projects.Create(ctx, " ", "blank", "")
	require.ErrorIs(t, err, errors.ErrValidation)

	_, err = repos.projects.Get(ctx, "missing")
	require.ErrorIs(t, err, errors.ErrNotFound)
	exists, err := repos.projects.Exists(ctx, "missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestProjectRepository_DeleteCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repos := newTestProject(t)

	require.NoError(t, repos.canon.AddFact(ctx, "demo", models.Fact{
		ID: "F1", Statement: "他是凶手", Source: "ch01", IntroducedIn: "ch01", Confidence: 1,
	}))
	_, err := repos.chapters.SaveDraft(ctx, "demo", "ch01", "正文", nil)
	require.NoError(t, err)

	require.NoError(t, repos.projects.Delete(ctx, "demo"))
	require.ErrorIs(t, repos.projects.Delete(ctx, "demo"), errors.ErrNotFound)

	facts, err := repos.canon.GetAllFacts(ctx, "demo")
	require.NoError(t, err)
	require.Empty(t, facts)
	chapters, err := repos.chapters.ListChapters(ctx, "demo")
	require.NoError(t, err)
	require.Empty(t, chapters)
}
