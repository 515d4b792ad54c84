package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/sqlite"
)

// CanonRepository stores the append-only canon logs of each project.
//
// Writes to one project are serialized by a per-project lock and run in a single transaction, so concurrent readers
// never observe a partially appended batch.
type CanonRepository struct {
	dbs    *sqlite.Database
	logger *slog.Logger
	locks  sync.Map // project id -> *sync.Mutex
}

func NewCanonRepository(dbs *sqlite.Database, logger *slog.Logger) *CanonRepository {
	return &CanonRepository{
		dbs:    dbs,
		logger: logger.With("source", "CanonRepository"),
		locks:  sync.Map{},
	}
}

func (r *CanonRepository) lock(projectID string) func() {
	mu, _ := r.locks.LoadOrStore(projectID, &sync.Mutex{})
	m := mu.(*sync.Mutex) //nolint:forcetypeassert // only *sync.Mutex is stored
	m.Lock()
	return m.Unlock
}

type factRow struct {
	ID           string  `db:"id"`
	Statement    string  `db:"statement"`
	Source       string  `db:"source"`
	IntroducedIn string  `db:"introduced_in"`
	Confidence   float64 `db:"confidence"`
}

func (row factRow) toModel() models.Fact {
	return models.Fact{
		ID:           row.ID,
		Statement:    row.Statement,
		Source:       row.Source,
		IntroducedIn: row.IntroducedIn,
		Confidence:   row.Confidence,
	}
}

type timelineEventRow struct {
	Time         string `db:"time_label"`
	Event        string `db:"event"`
	Participants string `db:"participants"`
	Location     string `db:"location"`
	Source       string `db:"source"`
}

func (row timelineEventRow) toModel() (models.TimelineEvent, error) {
	event := models.TimelineEvent{
		Time:         row.Time,
		Event:        row.Event,
		Participants: nil,
		Location:     row.Location,
		Source:       row.Source,
	}
	if err := json.Unmarshal([]byte(row.Participants), &event.Participants); err != nil {
		return event, errors.Wrap(errors.Mark(err, errors.ErrStorage), "decode participants")
	}
	return event, nil
}

type characterStateRow struct {
	Character      string `db:"character"`
	Goals          string `db:"goals"`
	Injuries       string `db:"injuries"`
	Inventory      string `db:"inventory"`
	Relationships  string `db:"relationships"`
	Location       string `db:"location"`
	EmotionalState string `db:"emotional_state"`
	LastSeen       string `db:"last_seen"`
	Source         string `db:"source"`
}

func (row characterStateRow) toModel() (models.CharacterState, error) {
	state := models.CharacterState{
		Character:      row.Character,
		Goals:          nil,
		Injuries:       nil,
		Inventory:      nil,
		Relationships:  nil,
		Location:       row.Location,
		EmotionalState: row.EmotionalState,
		LastSeen:       row.LastSeen,
		Source:         row.Source,
	}
	err := errors.Join(
		json.Unmarshal([]byte(row.Goals), &state.Goals),
		json.Unmarshal([]byte(row.Injuries), &state.Injuries),
		json.Unmarshal([]byte(row.Inventory), &state.Inventory),
		json.Unmarshal([]byte(row.Relationships), &state.Relationships),
	)
	if err != nil {
		return state, errors.Wrap(errors.Mark(err, errors.ErrStorage), "decode character state",
			slog.String("character", row.Character))
	}
	return state, nil
}

// AddFact appends a single fact.
func (r *CanonRepository) AddFact(ctx context.Context, projectID string, fact models.Fact) error {
	return r.appendBatch(ctx, projectID, "", models.CanonBatch{Facts: []models.Fact{fact}})
}

// AddTimelineEvent appends a single timeline event.
func (r *CanonRepository) AddTimelineEvent(ctx context.Context, projectID string, event models.TimelineEvent) error {
	return r.appendBatch(ctx, projectID, "", models.CanonBatch{TimelineEvents: []models.TimelineEvent{event}})
}

// UpdateCharacterState appends a new revision of the character's state. Earlier revisions are kept.
func (r *CanonRepository) UpdateCharacterState(ctx context.Context, projectID string, state models.CharacterState) error {
	return r.appendBatch(ctx, projectID, "", models.CanonBatch{CharacterStates: []models.CharacterState{state}})
}

// CommitChapter replaces the canon records sourced from chapterID with batch, preserving the batch order. Committing
// the same batch twice leaves the canon unchanged.
func (r *CanonRepository) CommitChapter(
	ctx context.Context,
	projectID, chapterID string,
	batch models.CanonBatch,
) error {
	return r.appendBatch(ctx, projectID, chapterID, batch)
}

// PurgeChapter removes every canon record sourced from chapterID.
func (r *CanonRepository) PurgeChapter(ctx context.Context, projectID, chapterID string) error {
	return r.appendBatch(ctx, projectID, chapterID, models.CanonBatch{})
}

// appendBatch appends batch in one transaction. A non-empty purgeSource first removes the records of that chapter.
func (r *CanonRepository) appendBatch(
	ctx context.Context,
	projectID, purgeSource string,
	batch models.CanonBatch,
) (err error) {
	if err = validateBatch(batch); err != nil {
		return err
	}

	unlock := r.lock(projectID)
	defer unlock()

	var tx *sqlx.Tx
	if tx, err = r.dbs.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "begin canon transaction")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback canon transaction", errors.SlogError(rbErr))
		}
	}()

	if purgeSource != "" {
		for _, stmt := range []string{
			`DELETE FROM facts WHERE project_id = ? AND source = ?`,
			`DELETE FROM timeline_events WHERE project_id = ? AND source = ?`,
			`DELETE FROM character_states WHERE project_id = ? AND source = ?`,
		} {
			if _, err = tx.ExecContext(ctx, stmt, projectID, purgeSource); err != nil {
				return errors.Wrap(errors.Mark(err, errors.ErrStorage), "purge chapter canon",
					slog.String("chapter_id", purgeSource))
			}
		}
	}

	for _, fact := range batch.Facts {
		stmt := `INSERT INTO facts (project_id, id, statement, source, introduced_in, confidence)
VALUES (?, ?, ?, ?, ?, ?)`
		if _, err = tx.ExecContext(ctx, stmt, projectID, fact.ID, fact.Statement, fact.Source, fact.IntroducedIn,
			fact.Confidence); err != nil {
			return errors.Wrap(classifyWrite(err), "insert fact", slog.String("fact_id", fact.ID))
		}
	}

	for _, event := range batch.TimelineEvents {
		var participants []byte
		if participants, err = json.Marshal(event.Participants); err != nil {
			return errors.Wrap(err, "encode participants")
		}
		stmt := `INSERT INTO timeline_events (project_id, time_label, event, participants, location, source)
VALUES (?, ?, ?, ?, ?, ?)`
		if _, err = tx.ExecContext(ctx, stmt, projectID, event.Time, event.Event, string(participants), event.Location,
			event.Source); err != nil {
			return errors.Wrap(classifyWrite(err), "insert timeline event")
		}
	}

	for _, state := range batch.CharacterStates {
		source := state.Source
		if source == "" {
			source = state.LastSeen
		}
		stmt := `INSERT INTO character_states (project_id, character, goals, injuries, inventory, relationships,
                              location, emotional_state, last_seen, source)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err = tx.ExecContext(ctx, stmt, projectID, state.Character,
			jsonText(state.Goals, "[]"), jsonText(state.Injuries, "[]"), jsonText(state.Inventory, "[]"),
			jsonText(state.Relationships, "{}"), state.Location, state.EmotionalState, state.LastSeen,
			source); err != nil {
			return errors.Wrap(classifyWrite(err), "insert character state",
				slog.String("character", state.Character))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(errors.Mark(err, errors.ErrStorage), "commit canon transaction")
	}
	return nil
}

func validateBatch(batch models.CanonBatch) error {
	for _, fact := range batch.Facts {
		if fact.ID == "" || fact.Statement == "" {
			return errors.Wrap(errors.ErrValidation, "fact requires id and statement", slog.String("fact_id", fact.ID))
		}
		if fact.Confidence < 0 || fact.Confidence > 1 {
			return errors.Wrap(errors.ErrValidation, "fact confidence out of range",
				slog.String("fact_id", fact.ID), slog.Float64("confidence", fact.Confidence))
		}
	}
	for _, event := range batch.TimelineEvents {
		if len(event.Participants) == 0 {
			return errors.Wrap(errors.ErrValidation, "timeline event requires participants",
				slog.String("event", event.Event))
		}
	}
	for _, state := range batch.CharacterStates {
		if state.Character == "" || state.LastSeen == "" {
			return errors.Wrap(errors.ErrValidation, "character state requires character and last_seen")
		}
	}
	return nil
}

// classifyWrite maps constraint violations to validation errors and everything else to storage errors.
func classifyWrite(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return errors.Mark(err, errors.ErrValidation)
	}
	return errors.Mark(err, errors.ErrStorage)
}

// jsonText encodes v for a JSON TEXT column, using empty for nil values.
func jsonText(v any, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func (r *CanonRepository) GetAllFacts(ctx context.Context, projectID string) ([]models.Fact, error) {
	return selectFacts(ctx, r.dbs.ReadOnly, projectID, "")
}

func (r *CanonRepository) GetFactsByChapter(ctx context.Context, projectID, chapterID string) ([]models.Fact, error) {
	return selectFacts(ctx, r.dbs.ReadOnly, projectID, chapterID)
}

func selectFacts(ctx context.Context, q sqlx.QueryerContext, projectID, source string) ([]models.Fact, error) {
	var rows []factRow
	stmt := `SELECT id, statement, source, introduced_in, confidence
FROM facts
WHERE project_id = ? AND (? = '' OR source = ?)
ORDER BY seq`
	if err := sqlx.SelectContext(ctx, q, &rows, stmt, projectID, source, source); err != nil {
		return nil, errors.Wrap(classify(err), "select facts", slog.String("project_id", projectID))
	}
	facts := make([]models.Fact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, row.toModel())
	}
	return facts, nil
}

func (r *CanonRepository) GetAllTimelineEvents(ctx context.Context, projectID string) ([]models.TimelineEvent, error) {
	return selectTimelineEvents(ctx, r.dbs.ReadOnly, projectID, "")
}

func (r *CanonRepository) GetTimelineEventsByChapter(
	ctx context.Context,
	projectID, chapterID string,
) ([]models.TimelineEvent, error) {
	return selectTimelineEvents(ctx, r.dbs.ReadOnly, projectID, chapterID)
}

func selectTimelineEvents(
	ctx context.Context,
	q sqlx.QueryerContext,
	projectID, source string,
) ([]models.TimelineEvent, error) {
	var rows []timelineEventRow
	stmt := `SELECT time_label, event, participants, location, source
FROM timeline_events
WHERE project_id = ? AND (? = '' OR source = ?)
ORDER BY seq`
	if err := sqlx.SelectContext(ctx, q, &rows, stmt, projectID, source, source); err != nil {
		return nil, errors.Wrap(classify(err), "select timeline events", slog.String("project_id", projectID))
	}
	events := make([]models.TimelineEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// GetTimelineEventsNearChapter returns up to maxEvents events sourced from the window chapters preceding chapterID,
// ordered by source chapter. When chapterID has no chapter number, the last maxEvents events are returned instead.
func (r *CanonRepository) GetTimelineEventsNearChapter(
	ctx context.Context,
	projectID, chapterID string,
	window, maxEvents int,
) ([]models.TimelineEvent, error) {
	events, err := r.GetAllTimelineEvents(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return models.EventsNearChapter(events, chapterID, window, maxEvents), nil
}

func lastN[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func (r *CanonRepository) GetAllCharacterStates(ctx context.Context, projectID string) ([]models.CharacterState, error) {
	return selectCharacterStates(ctx, r.dbs.ReadOnly, projectID, "")
}

// GetCharacterState returns the last appended state of character or an error matching [errors.ErrNotFound].
func (r *CanonRepository) GetCharacterState(
	ctx context.Context,
	projectID, character string,
) (*models.CharacterState, error) {
	states, err := selectCharacterStates(ctx, r.dbs.ReadOnly, projectID, character)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, errors.Wrap(errors.ErrNotFound, "character state", slog.String("character", character))
	}
	return &states[len(states)-1], nil
}

func selectCharacterStates(
	ctx context.Context,
	q sqlx.QueryerContext,
	projectID, character string,
) ([]models.CharacterState, error) {
	var rows []characterStateRow
	stmt := `SELECT character, goals, injuries, inventory, relationships, location, emotional_state, last_seen, source
FROM character_states
WHERE project_id = ? AND (? = '' OR character = ?)
ORDER BY seq`
	if err := sqlx.SelectContext(ctx, q, &rows, stmt, projectID, character, character); err != nil {
		return nil, errors.Wrap(classify(err), "select character states", slog.String("project_id", projectID))
	}
	states := make([]models.CharacterState, 0, len(rows))
	for _, row := range rows {
		state, err := row.toModel()
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, nil
}

// Snapshot reads all canon logs of the project within one read transaction.
func (r *CanonRepository) Snapshot(ctx context.Context, projectID string) (*models.CanonSnapshot, error) {
	tx, err := r.dbs.ReadOnly.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault, ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(errors.Mark(err, errors.ErrStorage), "begin snapshot")
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to end snapshot", errors.SlogError(rbErr))
		}
	}()

	var snapshot models.CanonSnapshot
	if snapshot.Facts, err = selectFacts(ctx, tx, projectID, ""); err != nil {
		return nil, err
	}
	if snapshot.TimelineEvents, err = selectTimelineEvents(ctx, tx, projectID, ""); err != nil {
		return nil, err
	}
	if snapshot.CharacterStates, err = selectCharacterStates(ctx, tx, projectID, ""); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
