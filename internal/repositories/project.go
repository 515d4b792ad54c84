package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/sqlite"
)

type ProjectRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewProjectRepository(dbs *sqlite.Database, logger *slog.Logger) *ProjectRepository {
	return &ProjectRepository{
		dbs:    dbs,
		logger: logger.With("source", "ProjectRepository"),
	}
}

type projectRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Created     string `db:"created"`
	Updated     string `db:"updated"`
}

func (row projectRow) toModel() models.Project {
	return models.Project{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Created:     parseTimestamp(row.Created),
		Updated:     parseTimestamp(row.Updated),
	}
}

// Create inserts a new project. The id must be non-empty and unique.
func (r *ProjectRepository) Create(ctx context.Context, id, name, description string) (*models.Project, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.Wrap(errors.ErrValidation, "empty project id")
	}
	if strings.TrimSpace(name) == "" {
		name = id
	}
	stmt := `INSERT INTO projects (id, name, description) VALUES (?, ?, ?)`
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, stmt, id, name, description); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "insert project", slog.String("project_id", id))
	}
	return r.Get(ctx, id)
}

// Get returns the project or an error matching [errors.ErrNotFound].
func (r *ProjectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	var row projectRow
	stmt := `SELECT id, name, description, created, updated FROM projects WHERE id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, id); err != nil {
		return nil, errors.Wrap(classify(err), "read project", slog.String("project_id", id))
	}
	project := row.toModel()
	return &project, nil
}

// Exists reports whether the project is present.
func (r *ProjectRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ProjectRepository) List(ctx context.Context) ([]models.Project, error) {
	var rows []projectRow
	stmt := `SELECT id, name, description, created, updated FROM projects ORDER BY id`
	if err := r.dbs.ReadOnly.SelectContext(ctx, &rows, stmt); err != nil {
		return nil, errors.Wrap(classify(err), "list projects")
	}
	projects := make([]models.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, row.toModel())
	}
	return projects, nil
}

// Delete removes the project and, through cascading foreign keys, its canon and chapter artifacts.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.dbs.ReadWrite.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "delete project", slog.String("project_id", id))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "delete project", slog.String("project_id", id))
	}
	return nil
}

// classify maps database errors onto the error taxonomy.
func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Mark(err, errors.ErrNotFound)
	}
	return errors.Mark(err, errors.ErrStorage)
}

const timestampLayout = "2006-01-02T15:04:05.999Z"

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
