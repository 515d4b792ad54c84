package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/sqlite"
)

// ChapterRepository stores versioned drafts and the single-slot artifacts of each chapter.
type ChapterRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
}

func NewChapterRepository(dbs *sqlite.Database, logger *slog.Logger) *ChapterRepository {
	return &ChapterRepository{
		dbs:    dbs,
		logger: logger.With("source", "ChapterRepository"),
	}
}

// saveBody upserts a JSON-encoded artifact into a single-slot table with a body column.
func (r *ChapterRepository) saveBody(ctx context.Context, table, column, projectID, chapterID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrValidation), "encode artifact", slog.String("table", table))
	}
	stmt := `INSERT INTO ` + table + ` (project_id, chapter_id, ` + column + `) VALUES (?, ?, ?)
ON CONFLICT (project_id, chapter_id) DO UPDATE SET ` + column + ` = excluded.` + column
	if _, err = r.dbs.ReadWrite.ExecContext(ctx, stmt, projectID, chapterID, string(body)); err != nil {
		return errors.Wrap(classifyWrite(err), "save artifact",
			slog.String("table", table), slog.String("chapter_id", chapterID))
	}
	return nil
}

// getBody decodes a single-slot artifact into dst or returns an error matching [errors.ErrNotFound].
func (r *ChapterRepository) getBody(ctx context.Context, table, column, projectID, chapterID string, dst any) error {
	var body string
	stmt := `SELECT ` + column + ` FROM ` + table + ` WHERE project_id = ? AND chapter_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &body, stmt, projectID, chapterID); err != nil {
		return errors.Wrap(classify(err), "read artifact",
			slog.String("table", table), slog.String("chapter_id", chapterID))
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode artifact",
			slog.String("table", table), slog.String("chapter_id", chapterID))
	}
	return nil
}

func (r *ChapterRepository) SaveSceneBrief(ctx context.Context, projectID string, brief models.SceneBrief) error {
	return r.saveBody(ctx, "scene_briefs", "body", projectID, brief.Chapter, brief)
}

func (r *ChapterRepository) GetSceneBrief(ctx context.Context, projectID, chapterID string) (*models.SceneBrief, error) {
	var brief models.SceneBrief
	if err := r.getBody(ctx, "scene_briefs", "body", projectID, chapterID, &brief); err != nil {
		return nil, err
	}
	return &brief, nil
}

func (r *ChapterRepository) SaveReview(ctx context.Context, projectID string, review models.ReviewResult) error {
	return r.saveBody(ctx, "reviews", "body", projectID, review.Chapter, review)
}

func (r *ChapterRepository) GetReview(ctx context.Context, projectID, chapterID string) (*models.ReviewResult, error) {
	var review models.ReviewResult
	if err := r.getBody(ctx, "reviews", "body", projectID, chapterID, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// SaveContext persists the context bundle a chapter's stages are generated against.
func (r *ChapterRepository) SaveContext(ctx context.Context, projectID, chapterID string, bundle any) error {
	return r.saveBody(ctx, "chapter_contexts", "bundle", projectID, chapterID, bundle)
}

// GetContext decodes the persisted context bundle into dst.
func (r *ChapterRepository) GetContext(ctx context.Context, projectID, chapterID string, dst any) error {
	return r.getBody(ctx, "chapter_contexts", "bundle", projectID, chapterID, dst)
}

// SaveCanonProposal persists the canon updates proposed while drafting the chapter.
func (r *ChapterRepository) SaveCanonProposal(
	ctx context.Context,
	projectID, chapterID string,
	batch models.CanonBatch,
) error {
	return r.saveBody(ctx, "canon_proposals", "body", projectID, chapterID, batch)
}

func (r *ChapterRepository) GetCanonProposal(
	ctx context.Context,
	projectID, chapterID string,
) (*models.CanonBatch, error) {
	var batch models.CanonBatch
	if err := r.getBody(ctx, "canon_proposals", "body", projectID, chapterID, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// SaveConflictReport overwrites the chapter's conflict report.
func (r *ChapterRepository) SaveConflictReport(ctx context.Context, projectID string, report models.ConflictReport) error {
	conflicts := report.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}
	body, err := json.Marshal(conflicts)
	if err != nil {
		return errors.Wrap(err, "encode conflicts")
	}
	stmt := `INSERT INTO conflict_reports (project_id, chapter_id, conflicts) VALUES (?, ?, ?)
ON CONFLICT (project_id, chapter_id) DO UPDATE SET conflicts = excluded.conflicts,
                                                   created   = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`
	if _, err = r.dbs.ReadWrite.ExecContext(ctx, stmt, projectID, report.Chapter, string(body)); err != nil {
		return errors.Wrap(classifyWrite(err), "save conflict report", slog.String("chapter_id", report.Chapter))
	}
	return nil
}

func (r *ChapterRepository) GetConflictReport(
	ctx context.Context,
	projectID, chapterID string,
) (*models.ConflictReport, error) {
	var row struct {
		Conflicts string `db:"conflicts"`
		Created   string `db:"created"`
	}
	stmt := `SELECT conflicts, created FROM conflict_reports WHERE project_id = ? AND chapter_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "read conflict report", slog.String("chapter_id", chapterID))
	}
	report := models.ConflictReport{
		Chapter:   chapterID,
		Conflicts: nil,
		Created:   parseTimestamp(row.Created),
	}
	if err := json.Unmarshal([]byte(row.Conflicts), &report.Conflicts); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode conflicts")
	}
	return &report, nil
}

type draftRow struct {
	Chapter              string `db:"chapter_id"`
	Version              int    `db:"version"`
	Content              string `db:"content"`
	WordCount            int    `db:"word_count"`
	PendingConfirmations string `db:"pending_confirmations"`
	Created              string `db:"created"`
}

func (row draftRow) toModel() (*models.Draft, error) {
	draft := models.Draft{
		Chapter:              row.Chapter,
		Version:              row.Version,
		Content:              row.Content,
		WordCount:            row.WordCount,
		PendingConfirmations: nil,
		Created:              parseTimestamp(row.Created),
	}
	if err := json.Unmarshal([]byte(row.PendingConfirmations), &draft.PendingConfirmations); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode pending confirmations")
	}
	return &draft, nil
}

const draftColumns = `chapter_id, version, content, word_count, pending_confirmations, created`

// SaveDraft stores content as the next version of the chapter's draft and returns it.
func (r *ChapterRepository) SaveDraft(
	ctx context.Context,
	projectID, chapterID, content string,
	pendingConfirmations []string,
) (_ *models.Draft, err error) {
	var tx *sqlx.Tx
	if tx, err = r.dbs.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "begin draft transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback draft transaction", errors.SlogError(rbErr))
		}
	}()

	var version int
	stmt := `SELECT COALESCE(MAX(version), 0) + 1 FROM drafts WHERE project_id = ? AND chapter_id = ?`
	if err = tx.GetContext(ctx, &version, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "next draft version")
	}

	stmt = `INSERT INTO drafts (project_id, chapter_id, version, content, word_count, pending_confirmations)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, stmt, projectID, chapterID, version, content, models.CountWords(content),
		jsonText(pendingConfirmations, "[]")); err != nil {
		return nil, errors.Wrap(classifyWrite(err), "insert draft", slog.String("chapter_id", chapterID))
	}

	var row draftRow
	stmt = `SELECT ` + draftColumns + ` FROM drafts WHERE project_id = ? AND chapter_id = ? AND version = ?`
	if err = tx.GetContext(ctx, &row, stmt, projectID, chapterID, version); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "read inserted draft")
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "commit draft transaction")
	}
	return row.toModel()
}

// GetDraft returns the given version of the chapter's draft.
func (r *ChapterRepository) GetDraft(ctx context.Context, projectID, chapterID string, version int) (*models.Draft, error) {
	var row draftRow
	stmt := `SELECT ` + draftColumns + ` FROM drafts WHERE project_id = ? AND chapter_id = ? AND version = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID, version); err != nil {
		return nil, errors.Wrap(classify(err), "read draft",
			slog.String("chapter_id", chapterID), slog.Int("version", version))
	}
	return row.toModel()
}

// LatestDraft returns the highest draft version of the chapter.
func (r *ChapterRepository) LatestDraft(ctx context.Context, projectID, chapterID string) (*models.Draft, error) {
	var row draftRow
	stmt := `SELECT ` + draftColumns + ` FROM drafts WHERE project_id = ? AND chapter_id = ?
ORDER BY version DESC LIMIT 1`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "read latest draft", slog.String("chapter_id", chapterID))
	}
	return row.toModel()
}

// ListDraftVersions returns the stored draft versions in ascending order.
func (r *ChapterRepository) ListDraftVersions(ctx context.Context, projectID, chapterID string) ([]int, error) {
	var versions []int
	stmt := `SELECT version FROM drafts WHERE project_id = ? AND chapter_id = ? ORDER BY version`
	if err := r.dbs.ReadOnly.SelectContext(ctx, &versions, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "list draft versions", slog.String("chapter_id", chapterID))
	}
	return versions, nil
}

// SetFinal marks an existing draft version as the chapter's final text.
func (r *ChapterRepository) SetFinal(ctx context.Context, projectID, chapterID string, version int) error {
	stmt := `INSERT INTO final_drafts (project_id, chapter_id, version) VALUES (?, ?, ?)
ON CONFLICT (project_id, chapter_id) DO UPDATE SET version = excluded.version`
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, stmt, projectID, chapterID, version); err != nil {
		return errors.Wrap(classifyWrite(err), "set final draft",
			slog.String("chapter_id", chapterID), slog.Int("version", version))
	}
	return nil
}

// GetFinal returns the draft marked final for the chapter.
func (r *ChapterRepository) GetFinal(ctx context.Context, projectID, chapterID string) (*models.Draft, error) {
	var row draftRow
	stmt := `SELECT d.chapter_id, d.version, d.content, d.word_count, d.pending_confirmations, d.created
FROM final_drafts f
         JOIN drafts d ON d.project_id = f.project_id AND d.chapter_id = f.chapter_id AND d.version = f.version
WHERE f.project_id = ? AND f.chapter_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "read final draft", slog.String("chapter_id", chapterID))
	}
	return row.toModel()
}

type summaryRow struct {
	Chapter      string `db:"chapter_id"`
	Title        string `db:"title"`
	BriefSummary string `db:"brief_summary"`
	KeyEvents    string `db:"key_events"`
	OpenLoops    string `db:"open_loops"`
	WordCount    int    `db:"word_count"`
}

func (row summaryRow) toModel() (models.ChapterSummary, error) {
	summary := models.ChapterSummary{
		Chapter:      row.Chapter,
		Title:        row.Title,
		BriefSummary: row.BriefSummary,
		KeyEvents:    nil,
		OpenLoops:    nil,
		WordCount:    row.WordCount,
	}
	if err := errors.Join(
		json.Unmarshal([]byte(row.KeyEvents), &summary.KeyEvents),
		json.Unmarshal([]byte(row.OpenLoops), &summary.OpenLoops),
	); err != nil {
		return summary, errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode summary",
			slog.String("chapter_id", row.Chapter))
	}
	return summary, nil
}

// SaveSummary overwrites the chapter's summary. A first save appends the chapter to the storage order of
// [ChapterRepository.ListSummaries].
func (r *ChapterRepository) SaveSummary(ctx context.Context, projectID string, summary models.ChapterSummary) error {
	stmt := `INSERT INTO summaries (project_id, chapter_id, title, brief_summary, key_events, open_loops, word_count)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, chapter_id) DO UPDATE SET title         = excluded.title,
                                                   brief_summary = excluded.brief_summary,
                                                   key_events    = excluded.key_events,
                                                   open_loops    = excluded.open_loops,
                                                   word_count    = excluded.word_count`
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, stmt, projectID, summary.Chapter, summary.Title,
		summary.BriefSummary, jsonText(summary.KeyEvents, "[]"), jsonText(summary.OpenLoops, "[]"),
		summary.WordCount); err != nil {
		return errors.Wrap(classifyWrite(err), "save summary", slog.String("chapter_id", summary.Chapter))
	}
	return nil
}

func (r *ChapterRepository) GetSummary(
	ctx context.Context,
	projectID, chapterID string,
) (*models.ChapterSummary, error) {
	var row summaryRow
	stmt := `SELECT chapter_id, title, brief_summary, key_events, open_loops, word_count
FROM summaries WHERE project_id = ? AND chapter_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "read summary", slog.String("chapter_id", chapterID))
	}
	summary, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListSummaries returns every summary of the project in storage order.
func (r *ChapterRepository) ListSummaries(ctx context.Context, projectID string) ([]models.ChapterSummary, error) {
	var rows []summaryRow
	stmt := `SELECT chapter_id, title, brief_summary, key_events, open_loops, word_count
FROM summaries WHERE project_id = ? ORDER BY rowid`
	if err := r.dbs.ReadOnly.SelectContext(ctx, &rows, stmt, projectID); err != nil {
		return nil, errors.Wrap(classify(err), "list summaries", slog.String("project_id", projectID))
	}
	summaries := make([]models.ChapterSummary, 0, len(rows))
	for _, row := range rows {
		summary, err := row.toModel()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RecentSummaries returns the last n summaries in storage order.
func (r *ChapterRepository) RecentSummaries(ctx context.Context, projectID string, n int) ([]models.ChapterSummary, error) {
	summaries, err := r.ListSummaries(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return lastN(summaries, n), nil
}

type pipelineRow struct {
	ProjectID     string `db:"project_id"`
	ChapterID     string `db:"chapter_id"`
	RunID         string `db:"run_id"`
	State         string `db:"state"`
	LastCompleted string `db:"last_completed"`
	Error         string `db:"error"`
	DraftVersion  int    `db:"draft_version"`
	Goal          string `db:"goal"`
	Characters    string `db:"characters"`
	Updated       string `db:"updated"`
}

// SavePipelineRecord upserts the chapter's pipeline progress.
func (r *ChapterRepository) SavePipelineRecord(ctx context.Context, record models.PipelineRecord) error {
	stmt := `INSERT INTO pipeline_runs (project_id, chapter_id, run_id, state, last_completed, error, draft_version, goal,
                           characters)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, chapter_id) DO UPDATE SET run_id         = excluded.run_id,
                                                   state          = excluded.state,
                                                   last_completed = excluded.last_completed,
                                                   error          = excluded.error,
                                                   draft_version  = excluded.draft_version,
                                                   goal           = excluded.goal,
                                                   characters     = excluded.characters,
                                                   updated        = STRFTIME('%Y-%m-%dT%H:%M:%fZ')`
	if _, err := r.dbs.ReadWrite.ExecContext(ctx, stmt, record.ProjectID, record.ChapterID, record.RunID,
		string(record.State), string(record.LastCompleted), record.Error, record.DraftVersion, record.Goal,
		jsonText(record.Characters, "[]")); err != nil {
		return errors.Wrap(classifyWrite(err), "save pipeline record", slog.String("chapter_id", record.ChapterID))
	}
	return nil
}

// GetPipelineRecord returns the chapter's pipeline progress or an error matching [errors.ErrNotFound].
func (r *ChapterRepository) GetPipelineRecord(
	ctx context.Context,
	projectID, chapterID string,
) (*models.PipelineRecord, error) {
	var row pipelineRow
	stmt := `SELECT project_id, chapter_id, run_id, state, last_completed, error, draft_version, goal, characters, updated
FROM pipeline_runs WHERE project_id = ? AND chapter_id = ?`
	if err := r.dbs.ReadOnly.GetContext(ctx, &row, stmt, projectID, chapterID); err != nil {
		return nil, errors.Wrap(classify(err), "read pipeline record", slog.String("chapter_id", chapterID))
	}
	record := models.PipelineRecord{
		ProjectID:     row.ProjectID,
		ChapterID:     row.ChapterID,
		RunID:         row.RunID,
		State:         models.PipelineState(row.State),
		LastCompleted: models.PipelineState(row.LastCompleted),
		Error:         row.Error,
		DraftVersion:  row.DraftVersion,
		Goal:          row.Goal,
		Characters:    nil,
		Updated:       parseTimestamp(row.Updated),
	}
	if err := json.Unmarshal([]byte(row.Characters), &record.Characters); err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrValidation), "decode pipeline characters")
	}
	return &record, nil
}

// chapterTables lists every table keyed by (project_id, chapter_id). final_drafts precedes drafts because of its
// foreign key.
var chapterTables = []string{
	"final_drafts",
	"drafts",
	"scene_briefs",
	"reviews",
	"summaries",
	"conflict_reports",
	"chapter_contexts",
	"canon_proposals",
	"pipeline_runs",
}

// ListChapters returns every chapter with at least one stored artifact, ordered by chapter number. Chapters without a
// number sort last by id.
func (r *ChapterRepository) ListChapters(ctx context.Context, projectID string) ([]string, error) {
	selects := make([]string, 0, len(chapterTables))
	args := make([]any, 0, len(chapterTables))
	for _, table := range chapterTables {
		selects = append(selects, `SELECT chapter_id FROM `+table+` WHERE project_id = ?`)
		args = append(args, projectID)
	}
	var chapters []string
	if err := r.dbs.ReadOnly.SelectContext(ctx, &chapters, strings.Join(selects, " UNION "), args...); err != nil {
		return nil, errors.Wrap(classify(err), "list chapters", slog.String("project_id", projectID))
	}
	SortChapterIDs(chapters)
	return chapters, nil
}

// SortChapterIDs sorts chapter ids by chapter number and then by id. Ids without a number sort last.
func SortChapterIDs(chapters []string) {
	sort.SliceStable(chapters, func(i, j int) bool {
		a, okA := models.ChapterNumber(chapters[i])
		b, okB := models.ChapterNumber(chapters[j])
		switch {
		case okA && okB && a != b:
			return a < b
		case okA != okB:
			return okA
		default:
			return chapters[i] < chapters[j]
		}
	})
}

// DeleteChapter removes every artifact of the chapter in one transaction and reports whether anything existed.
// Canon records are kept; purge them separately with [CanonRepository.PurgeChapter].
func (r *ChapterRepository) DeleteChapter(ctx context.Context, projectID, chapterID string) (_ bool, err error) {
	var tx *sqlx.Tx
	if tx, err = r.dbs.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return false, errors.Wrap(errors.Mark(err, errors.ErrStorage), "begin delete transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback delete transaction", errors.SlogError(rbErr))
		}
	}()

	var deleted int64
	for _, table := range chapterTables {
		var res sql.Result
		stmt := `DELETE FROM ` + table + ` WHERE project_id = ? AND chapter_id = ?`
		if res, err = tx.ExecContext(ctx, stmt, projectID, chapterID); err != nil {
			return false, errors.Wrap(errors.Mark(err, errors.ErrStorage), "delete chapter artifacts",
				slog.String("table", table), slog.String("chapter_id", chapterID))
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(errors.Mark(err, errors.ErrStorage), "commit delete transaction")
	}
	return deleted > 0, nil
}
