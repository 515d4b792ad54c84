// Package orchestrator drives a chapter through the generation pipeline.
//
// The pipeline is linear:
//
//	NEW → CONTEXT_READY → BRIEFED → DRAFTED → REVIEWED → CONFLICT_CHECKED → FINALIZED → SUMMARIZED
//
// Every stage persists its output before the pipeline record advances, and every stage reads its inputs from storage.
// A failed run stops in FAILED with the last completed state recorded, and running the chapter again resumes after
// that state without regenerating earlier output.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/inkwell/internal/agents"
	"github.com/myrjola/inkwell/internal/contextengine"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/myrjola/inkwell/internal/models"
)

type ProjectReader interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type ChapterStore interface {
	SaveContext(ctx context.Context, projectID, chapterID string, bundle any) error
	GetContext(ctx context.Context, projectID, chapterID string, dst any) error
	SaveSceneBrief(ctx context.Context, projectID string, brief models.SceneBrief) error
	GetSceneBrief(ctx context.Context, projectID, chapterID string) (*models.SceneBrief, error)
	SaveDraft(ctx context.Context, projectID, chapterID, content string, pending []string) (*models.Draft, error)
	GetDraft(ctx context.Context, projectID, chapterID string, version int) (*models.Draft, error)
	SetFinal(ctx context.Context, projectID, chapterID string, version int) error
	GetFinal(ctx context.Context, projectID, chapterID string) (*models.Draft, error)
	SaveCanonProposal(ctx context.Context, projectID, chapterID string, batch models.CanonBatch) error
	GetCanonProposal(ctx context.Context, projectID, chapterID string) (*models.CanonBatch, error)
	SaveReview(ctx context.Context, projectID string, review models.ReviewResult) error
	GetReview(ctx context.Context, projectID, chapterID string) (*models.ReviewResult, error)
	SaveConflictReport(ctx context.Context, projectID string, report models.ConflictReport) error
	GetConflictReport(ctx context.Context, projectID, chapterID string) (*models.ConflictReport, error)
	SaveSummary(ctx context.Context, projectID string, summary models.ChapterSummary) error
	SavePipelineRecord(ctx context.Context, record models.PipelineRecord) error
	GetPipelineRecord(ctx context.Context, projectID, chapterID string) (*models.PipelineRecord, error)
}

type CanonStore interface {
	Snapshot(ctx context.Context, projectID string) (*models.CanonSnapshot, error)
	CommitChapter(ctx context.Context, projectID, chapterID string, batch models.CanonBatch) error
}

type ContextSelector interface {
	SelectForChapter(ctx context.Context, req contextengine.Request) (*contextengine.Bundle, error)
}

type ConflictDetector interface {
	Detect(chapterID string, proposed models.CanonBatch, canon models.CanonSnapshot) []string
}

// Request starts or resumes a chapter pipeline.
type Request struct {
	ProjectID string
	ChapterID string
	// Goal and Characters steer generation. When empty on a resumed run, the values of the previous run are used.
	Goal       string
	Characters []string
	// RunID identifies the run in progress events. A random id is generated when empty.
	RunID string
	// OnEvent receives progress events. It is called synchronously from the pipeline.
	OnEvent func(Event)
}

type Orchestrator struct {
	projects ProjectReader
	chapters ChapterStore
	canon    CanonStore
	selector ContextSelector
	detector ConflictDetector
	team     agents.Team
	logger   *slog.Logger
	running  sync.Map
}

func New(
	projects ProjectReader,
	chapters ChapterStore,
	canon CanonStore,
	selector ContextSelector,
	detector ConflictDetector,
	team agents.Team,
	logger *slog.Logger,
) (*Orchestrator, error) {
	for _, role := range agents.Roles {
		if _, ok := team[role]; !ok {
			return nil, errors.Wrap(errors.ErrValidation, "missing agent", slog.String("role", string(role)))
		}
	}
	return &Orchestrator{
		projects: projects,
		chapters: chapters,
		canon:    canon,
		selector: selector,
		detector: detector,
		team:     team,
		logger:   logger.With("source", "Orchestrator"),
		running:  sync.Map{},
	}, nil
}

// acquire claims the chapter for a run. The returned function releases it.
func (o *Orchestrator) acquire(projectID, chapterID string) (func(), error) {
	key := projectID + "/" + chapterID
	if _, busy := o.running.LoadOrStore(key, struct{}{}); busy {
		return nil, errors.Wrap(errors.ErrPipelineBusy, "chapter pipeline already running",
			slog.String("project_id", projectID), slog.String("chapter_id", chapterID))
	}
	return func() { o.running.Delete(key) }, nil
}

// Run drives the chapter from its last completed state to SUMMARIZED. A chapter that is already summarized is left
// untouched; use [Orchestrator.Reset] to regenerate it.
//
// On failure the returned record is in FAILED state and the error matches the category of the failing stage.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.PipelineRecord, error) {
	if req.ProjectID == "" || req.ChapterID == "" {
		return nil, errors.Wrap(errors.ErrValidation, "project and chapter are required")
	}
	exists, err := o.projects.Exists(ctx, req.ProjectID)
	if err != nil {
		return nil, errors.Wrap(err, "check project")
	}
	if !exists {
		return nil, errors.Wrap(errors.ErrNotFound, "project not found", slog.String("project_id", req.ProjectID))
	}

	release, err := o.acquire(req.ProjectID, req.ChapterID)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := o.Status(ctx, req.ProjectID, req.ChapterID)
	if err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	record.RunID = req.RunID
	record.Error = ""
	if req.Goal != "" {
		record.Goal = req.Goal
	}
	if len(req.Characters) > 0 {
		record.Characters = req.Characters
	}

	ctx = logging.WithAttrs(ctx,
		slog.String("project_id", req.ProjectID),
		slog.String("chapter_id", req.ChapterID),
		slog.String("run_id", req.RunID))

	r := &run{req: req, record: record}
	if record.LastCompleted.Terminal() {
		o.logger.LogAttrs(ctx, slog.LevelInfo, "chapter already summarized")
		r.emit(EventRunCompleted, record.LastCompleted, "already summarized")
		return record, nil
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "pipeline started",
		slog.String("resume_after", string(record.LastCompleted)))

	for _, st := range stages {
		if st.to.Ordinal() <= record.LastCompleted.Ordinal() {
			continue
		}
		if err = o.runStage(ctx, r, st); err != nil {
			return o.fail(ctx, r, st, err)
		}
	}

	o.logger.LogAttrs(ctx, slog.LevelInfo, "pipeline completed")
	r.emit(EventRunCompleted, record.State, "")
	return record, nil
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, st stage) error {
	ctx = logging.WithAttrs(ctx, slog.String("stage", st.name))
	r.emit(EventStageStarted, st.to, st.name)
	start := time.Now()
	if err := st.run(o, ctx, r); err != nil {
		return err
	}

	r.record.State = st.to
	r.record.LastCompleted = st.to
	if err := o.chapters.SavePipelineRecord(ctx, *r.record); err != nil {
		return errors.Wrap(err, "save pipeline record")
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "stage completed",
		slog.String("state", string(st.to)), slog.Duration("duration", time.Since(start)))
	r.emit(EventStageCompleted, st.to, st.name)
	return nil
}

// fail records the failure. The record is written even when ctx is cancelled.
func (o *Orchestrator) fail(ctx context.Context, r *run, st stage, err error) (*models.PipelineRecord, error) {
	err = errors.Wrap(err, "stage "+st.name, slog.String("stage", st.name))
	o.logger.LogAttrs(ctx, slog.LevelError, "stage failed", errors.SlogError(err))

	r.record.State = models.StateFailed
	r.record.Error = err.Error()
	if saveErr := o.chapters.SavePipelineRecord(context.WithoutCancel(ctx), *r.record); saveErr != nil {
		o.logger.LogAttrs(ctx, slog.LevelError, "failed to record pipeline failure", errors.SlogError(saveErr))
	}
	r.emit(EventStageFailed, st.to, err.Error())
	return r.record, err
}

// Status returns the chapter's pipeline record. Chapters that never ran report NEW.
func (o *Orchestrator) Status(ctx context.Context, projectID, chapterID string) (*models.PipelineRecord, error) {
	record, err := o.chapters.GetPipelineRecord(ctx, projectID, chapterID)
	if errors.Is(err, errors.ErrNotFound) {
		return &models.PipelineRecord{
			ProjectID:     projectID,
			ChapterID:     chapterID,
			RunID:         "",
			State:         models.StateNew,
			LastCompleted: models.StateNew,
			Error:         "",
			DraftVersion:  0,
			Goal:          "",
			Characters:    nil,
			Updated:       time.Time{},
		}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read pipeline record")
	}
	return record, nil
}

// Reset puts the chapter back to NEW so that the next run regenerates every stage. Stored drafts are kept as earlier
// versions, and the chapter's canon is replaced when the new run finalizes.
func (o *Orchestrator) Reset(ctx context.Context, projectID, chapterID string) error {
	exists, err := o.projects.Exists(ctx, projectID)
	if err != nil {
		return errors.Wrap(err, "check project")
	}
	if !exists {
		return errors.Wrap(errors.ErrNotFound, "project not found", slog.String("project_id", projectID))
	}
	release, err := o.acquire(projectID, chapterID)
	if err != nil {
		return err
	}
	defer release()

	record, err := o.Status(ctx, projectID, chapterID)
	if err != nil {
		return err
	}
	record.State = models.StateNew
	record.LastCompleted = models.StateNew
	record.Error = ""
	record.DraftVersion = 0
	if err = o.chapters.SavePipelineRecord(ctx, *record); err != nil {
		return errors.Wrap(err, "reset pipeline record")
	}
	o.logger.LogAttrs(ctx, slog.LevelInfo, "pipeline reset",
		slog.String("project_id", projectID), slog.String("chapter_id", chapterID))
	return nil
}
