package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/myrjola/inkwell/internal/agents"
	"github.com/myrjola/inkwell/internal/contextengine"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/models"
)

// run is the state of one pipeline invocation.
type run struct {
	req    Request
	record *models.PipelineRecord
}

func (r *run) emit(kind EventKind, state models.PipelineState, msg string) {
	if r.req.OnEvent == nil {
		return
	}
	r.req.OnEvent(Event{
		RunID:     r.req.RunID,
		ProjectID: r.req.ProjectID,
		ChapterID: r.req.ChapterID,
		Kind:      kind,
		State:     state,
		Message:   msg,
		Time:      time.Now(),
	})
}

// onDelta forwards streamed prose as progress events.
func (r *run) onDelta(state models.PipelineState) func(string) {
	if r.req.OnEvent == nil {
		return nil
	}
	return func(chunk string) {
		r.emit(EventDelta, state, chunk)
	}
}

func (r *run) input() agents.Input {
	return agents.Input{
		ChapterID:  r.record.ChapterID,
		Goal:       r.record.Goal,
		Characters: r.record.Characters,
		Context:    "",
		Brief:      nil,
		Draft:      nil,
		Review:     nil,
		Conflicts:  nil,
		OnDelta:    nil,
	}
}

// stage advances the pipeline to state to.
type stage struct {
	name string
	to   models.PipelineState
	run  func(o *Orchestrator, ctx context.Context, r *run) error
}

var stages = []stage{
	{name: "context", to: models.StateContextReady, run: (*Orchestrator).selectContext},
	{name: "archivist", to: models.StateBriefed, run: (*Orchestrator).brief},
	{name: "writer", to: models.StateDrafted, run: (*Orchestrator).draft},
	{name: "reviewer", to: models.StateReviewed, run: (*Orchestrator).review},
	{name: "conflicts", to: models.StateConflictChecked, run: (*Orchestrator).checkConflicts},
	{name: "editor", to: models.StateFinalized, run: (*Orchestrator).finalize},
	{name: "summarizer", to: models.StateSummarized, run: (*Orchestrator).summarize},
}

func (o *Orchestrator) selectContext(ctx context.Context, r *run) error {
	bundle, err := o.selector.SelectForChapter(ctx, contextengine.Request{
		ProjectID:  r.record.ProjectID,
		ChapterID:  r.record.ChapterID,
		Characters: r.record.Characters,
	})
	if err != nil {
		return errors.Wrap(err, "select context")
	}
	if err = o.chapters.SaveContext(ctx, r.record.ProjectID, r.record.ChapterID, bundle); err != nil {
		return errors.Wrap(err, "save context")
	}
	o.logger.LogAttrs(ctx, slog.LevelDebug, "context selected",
		slog.Int("facts", len(bundle.Facts)),
		slog.Int("timeline_events", len(bundle.Timeline)),
		slog.Int("summaries", bundle.PreviousSummaries.Len()))
	return nil
}

func (o *Orchestrator) loadContext(ctx context.Context, r *run) (string, error) {
	var bundle contextengine.Bundle
	if err := o.chapters.GetContext(ctx, r.record.ProjectID, r.record.ChapterID, &bundle); err != nil {
		return "", errors.Wrap(err, "load context")
	}
	return bundle.Render(), nil
}

func (o *Orchestrator) loadDraft(ctx context.Context, r *run) (*models.Draft, error) {
	draft, err := o.chapters.GetDraft(ctx, r.record.ProjectID, r.record.ChapterID, r.record.DraftVersion)
	if err != nil {
		return nil, errors.Wrap(err, "load draft", slog.Int("version", r.record.DraftVersion))
	}
	return draft, nil
}

func (o *Orchestrator) brief(ctx context.Context, r *run) error {
	in := r.input()
	var err error
	if in.Context, err = o.loadContext(ctx, r); err != nil {
		return err
	}
	out, err := o.team[agents.RoleArchivist].Execute(ctx, in)
	if err != nil {
		return err
	}
	if err = o.chapters.SaveSceneBrief(ctx, r.record.ProjectID, *out.Brief); err != nil {
		return errors.Wrap(err, "save scene brief")
	}
	return nil
}

func (o *Orchestrator) draft(ctx context.Context, r *run) error {
	in := r.input()
	var err error
	if in.Context, err = o.loadContext(ctx, r); err != nil {
		return err
	}
	if in.Brief, err = o.chapters.GetSceneBrief(ctx, r.record.ProjectID, r.record.ChapterID); err != nil {
		return errors.Wrap(err, "load scene brief")
	}
	in.OnDelta = r.onDelta(models.StateDrafted)
	out, err := o.team[agents.RoleWriter].Execute(ctx, in)
	if err != nil {
		return err
	}
	draft, err := o.chapters.SaveDraft(ctx, r.record.ProjectID, r.record.ChapterID, out.Text,
		out.PendingConfirmations)
	if err != nil {
		return errors.Wrap(err, "save draft")
	}
	if err = o.chapters.SaveCanonProposal(ctx, r.record.ProjectID, r.record.ChapterID, out.Canon); err != nil {
		return errors.Wrap(err, "save canon proposal")
	}
	r.record.DraftVersion = draft.Version
	o.logger.LogAttrs(ctx, slog.LevelDebug, "draft saved",
		slog.Int("version", draft.Version), slog.Int("word_count", draft.WordCount))
	return nil
}

func (o *Orchestrator) review(ctx context.Context, r *run) error {
	in := r.input()
	var err error
	if in.Context, err = o.loadContext(ctx, r); err != nil {
		return err
	}
	if in.Brief, err = o.chapters.GetSceneBrief(ctx, r.record.ProjectID, r.record.ChapterID); err != nil {
		return errors.Wrap(err, "load scene brief")
	}
	if in.Draft, err = o.loadDraft(ctx, r); err != nil {
		return err
	}
	out, err := o.team[agents.RoleReviewer].Execute(ctx, in)
	if err != nil {
		return err
	}
	if err = o.chapters.SaveReview(ctx, r.record.ProjectID, *out.Review); err != nil {
		return errors.Wrap(err, "save review")
	}
	return nil
}

// checkConflicts compares the proposed canon with the canon of other chapters. Conflicts are reported, not fatal.
func (o *Orchestrator) checkConflicts(ctx context.Context, r *run) error {
	proposal, err := o.chapters.GetCanonProposal(ctx, r.record.ProjectID, r.record.ChapterID)
	if err != nil {
		return errors.Wrap(err, "load canon proposal")
	}
	snapshot, err := o.canon.Snapshot(ctx, r.record.ProjectID)
	if err != nil {
		return errors.Wrap(err, "read canon")
	}
	conflicts := o.detector.Detect(r.record.ChapterID, *proposal, snapshot.WithoutSource(r.record.ChapterID))
	report := models.ConflictReport{Chapter: r.record.ChapterID, Conflicts: conflicts, Created: time.Now()}
	if err = o.chapters.SaveConflictReport(ctx, r.record.ProjectID, report); err != nil {
		return errors.Wrap(err, "save conflict report")
	}
	if len(conflicts) > 0 {
		o.logger.LogAttrs(ctx, slog.LevelWarn, "canon conflicts found", slog.Int("conflicts", len(conflicts)))
	}
	return nil
}

// finalize commits the chapter's canon and stores the edited text as the final draft.
func (o *Orchestrator) finalize(ctx context.Context, r *run) error {
	in := r.input()
	var err error
	if in.Context, err = o.loadContext(ctx, r); err != nil {
		return err
	}
	if in.Draft, err = o.loadDraft(ctx, r); err != nil {
		return err
	}
	if in.Review, err = o.chapters.GetReview(ctx, r.record.ProjectID, r.record.ChapterID); err != nil {
		return errors.Wrap(err, "load review")
	}
	report, err := o.chapters.GetConflictReport(ctx, r.record.ProjectID, r.record.ChapterID)
	if err != nil {
		return errors.Wrap(err, "load conflict report")
	}
	in.Conflicts = report.Conflicts
	proposal, err := o.chapters.GetCanonProposal(ctx, r.record.ProjectID, r.record.ChapterID)
	if err != nil {
		return errors.Wrap(err, "load canon proposal")
	}

	in.OnDelta = r.onDelta(models.StateFinalized)
	out, err := o.team[agents.RoleEditor].Execute(ctx, in)
	if err != nil {
		return err
	}
	// Canon goes first so that a rejected commit leaves no final draft behind. CommitChapter replaces the
	// chapter's records, so a retry may commit again.
	if err = o.canon.CommitChapter(ctx, r.record.ProjectID, r.record.ChapterID, *proposal); err != nil {
		return errors.Wrap(err, "commit canon")
	}
	final, err := o.chapters.SaveDraft(ctx, r.record.ProjectID, r.record.ChapterID, out.Text,
		in.Draft.PendingConfirmations)
	if err != nil {
		return errors.Wrap(err, "save final draft")
	}
	if err = o.chapters.SetFinal(ctx, r.record.ProjectID, r.record.ChapterID, final.Version); err != nil {
		return errors.Wrap(err, "mark final draft")
	}
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, r *run) error {
	in := r.input()
	var err error
	if in.Draft, err = o.chapters.GetFinal(ctx, r.record.ProjectID, r.record.ChapterID); err != nil {
		return errors.Wrap(err, "load final draft")
	}
	out, err := o.team[agents.RoleSummarizer].Execute(ctx, in)
	if err != nil {
		return err
	}
	if err = o.chapters.SaveSummary(ctx, r.record.ProjectID, *out.Summary); err != nil {
		return errors.Wrap(err, "save summary")
	}
	return nil
}
