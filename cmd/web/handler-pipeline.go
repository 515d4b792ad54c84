package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/myrjola/inkwell/internal/errors"
	"github.com/myrjola/inkwell/internal/logging"
	"github.com/myrjola/inkwell/internal/models"
	"github.com/myrjola/inkwell/internal/orchestrator"
)

// reservedEvents is the buffer space kept free of prose deltas so that stage events reach a slow subscriber.
const reservedEvents = 32

type startRunRequest struct {
	Goal       string   `json:"goal"`
	Characters []string `json:"characters"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

func (app *application) chapterStatus(w http.ResponseWriter, r *http.Request) {
	projectID, chapterID := r.PathValue("project"), r.PathValue("chapter")
	if _, err := app.app.Projects.Get(r.Context(), projectID); err != nil {
		app.handleError(w, r, err)
		return
	}
	record, err := app.app.Orchestrator.Status(r.Context(), projectID, chapterID)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, record)
}

func (app *application) resetChapter(w http.ResponseWriter, r *http.Request) {
	if err := app.app.Orchestrator.Reset(r.Context(), r.PathValue("project"), r.PathValue("chapter")); err != nil {
		app.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) chapterConflicts(w http.ResponseWriter, r *http.Request) {
	report, err := app.app.Chapters.GetConflictReport(r.Context(), r.PathValue("project"), r.PathValue("chapter"))
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, report)
}

// startRun starts the chapter pipeline in the background and responds with the run id once the run has emitted its
// first event. Failures before that, such as an unknown project or a busy chapter, are reported in the response.
// Progress is streamed by [application.runEvents].
func (app *application) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.ContentLength != 0 {
		if err := app.readJSON(w, r, &req); err != nil {
			app.handleError(w, r, err)
			return
		}
	}

	projectID, chapterID := r.PathValue("project"), r.PathValue("chapter")
	runID := uuid.NewString()
	events := make(chan orchestrator.Event, app.runBuffer)
	app.runs.Publish(runID, events)

	started := make(chan error, 1)
	var startOnce sync.Once
	ctx := logging.WithAttrs(app.runCtx, slog.String("run_id", runID))

	app.inFlight.Add(1)
	go func() {
		defer app.inFlight.Done()
		defer func() {
			close(events)
			app.runs.Unpublish(runID)
		}()
		_, err := app.app.Orchestrator.Run(ctx, orchestrator.Request{
			ProjectID:  projectID,
			ChapterID:  chapterID,
			Goal:       req.Goal,
			Characters: req.Characters,
			RunID:      runID,
			OnEvent: func(e orchestrator.Event) {
				startOnce.Do(func() { started <- nil })
				if e.Kind == orchestrator.EventDelta && len(events) >= cap(events)-reservedEvents {
					return
				}
				select {
				case events <- e:
				default:
					app.logger.LogAttrs(ctx, slog.LevelDebug, "dropping run event", slog.String("kind", string(e.Kind)))
				}
			},
		})
		startOnce.Do(func() { started <- err })
	}()

	if err := <-started; err != nil {
		app.handleError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusAccepted, startRunResponse{RunID: runID})
}

// runEvents streams the progress of a run as server-sent events. When another client holds the stream or the run has
// already ended, the final state is read from the pipeline record instead.
func (app *application) runEvents(w http.ResponseWriter, r *http.Request) {
	projectID, chapterID, runID := r.PathValue("project"), r.PathValue("chapter"), r.PathValue("run")
	flusher, ok := w.(http.Flusher)
	if !ok {
		app.serverError(w, r, errors.New("streaming unsupported"))
		return
	}

	events, claimed := <-app.runs.Subscribe(r.Context(), runID)
	var final *orchestrator.Event
	if !claimed {
		record, err := app.app.Orchestrator.Status(r.Context(), projectID, chapterID)
		if err != nil {
			app.handleError(w, r, err)
			return
		}
		if record.RunID != runID {
			app.notFound(w, r)
			return
		}
		final = recordEvent(record)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if final != nil {
		_ = app.writeEvent(w, r, *final)
		flusher.Flush()
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-app.runCtx.Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			if err := app.writeEvent(w, r, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (app *application) writeEvent(w io.Writer, r *http.Request, e orchestrator.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "marshal event", errors.SlogError(err))
		return errors.Wrap(err, "marshal event")
	}
	if _, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
		return errors.Wrap(err, "write event")
	}
	return nil
}

// recordEvent describes the outcome of the record's last run.
func recordEvent(record *models.PipelineRecord) *orchestrator.Event {
	e := &orchestrator.Event{
		RunID:     record.RunID,
		ProjectID: record.ProjectID,
		ChapterID: record.ChapterID,
		Kind:      orchestrator.EventRunCompleted,
		State:     record.State,
		Message:   "",
		Time:      record.Updated,
	}
	if record.State == models.StateFailed {
		e.Kind = orchestrator.EventStageFailed
		e.Message = record.Error
	}
	return e
}
