package orchestrator

import (
	"time"

	"github.com/myrjola/inkwell/internal/models"
)

type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageCompleted EventKind = "stage_completed"
	EventStageFailed    EventKind = "stage_failed"
	// EventDelta carries streamed prose of the Writer and the Editor.
	EventDelta        EventKind = "delta"
	EventRunCompleted EventKind = "run_completed"
)

// Event reports pipeline progress. State is the state the stage advances to.
type Event struct {
	RunID     string               `json:"run_id"`
	ProjectID string               `json:"project_id"`
	ChapterID string               `json:"chapter_id"`
	Kind      EventKind            `json:"kind"`
	State     models.PipelineState `json:"state"`
	Message   string               `json:"message,omitempty"`
	Time      time.Time            `json:"time"`
}
