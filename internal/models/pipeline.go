package models

import "time"

// PipelineState is a position in the chapter pipeline.
type PipelineState string

const (
	StateNew             PipelineState = "NEW"
	StateContextReady    PipelineState = "CONTEXT_READY"
	StateBriefed         PipelineState = "BRIEFED"
	StateDrafted         PipelineState = "DRAFTED"
	StateReviewed        PipelineState = "REVIEWED"
	StateConflictChecked PipelineState = "CONFLICT_CHECKED"
	StateFinalized       PipelineState = "FINALIZED"
	StateSummarized      PipelineState = "SUMMARIZED"
	StateFailed          PipelineState = "FAILED"
)

// PipelineStates lists the non-failed states in pipeline order.
var PipelineStates = []PipelineState{
	StateNew,
	StateContextReady,
	StateBriefed,
	StateDrafted,
	StateReviewed,
	StateConflictChecked,
	StateFinalized,
	StateSummarized,
}

// Ordinal returns the position of s in [PipelineStates], or -1 for FAILED and unknown states.
func (s PipelineState) Ordinal() int {
	for i, state := range PipelineStates {
		if state == s {
			return i
		}
	}
	return -1
}

// Terminal reports whether no further stage can run from s.
func (s PipelineState) Terminal() bool {
	return s == StateSummarized
}

// PipelineRecord is the persisted progress of a chapter pipeline.
//
// LastCompleted is the last state whose stage output is durable. When State is FAILED, a re-run resumes from
// LastCompleted. DraftVersion is the Writer's draft that the later stages review and edit.
type PipelineRecord struct {
	ProjectID     string        `json:"project_id"`
	ChapterID     string        `json:"chapter_id"`
	RunID         string        `json:"run_id,omitempty"`
	State         PipelineState `json:"state"`
	LastCompleted PipelineState `json:"last_completed"`
	Error         string        `json:"error,omitempty"`
	DraftVersion  int           `json:"draft_version"`
	Goal          string        `json:"goal,omitempty"`
	Characters    []string      `json:"characters,omitempty"`
	Updated       time.Time     `json:"updated"`
}
