// internal/model/run.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the state of a provisioning run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// FrameStatus represents the outcome of a single frame
type FrameStatus string

const (
	FrameStatusSent    FrameStatus = "SENT"
	FrameStatusFailed  FrameStatus = "FAILED"
	FrameStatusEncoded FrameStatus = "ENCODED" // dry run, never written to the device
)

// Run is one application of a configuration file to the receiver
type Run struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Source       string         `json:"source" db:"source"`
	Port         string         `json:"port" db:"port"`
	DryRun       bool           `json:"dry_run" db:"dry_run"`
	Status       RunStatus      `json:"status" db:"status"`
	StartedAt    time.Time      `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
	FramesTotal  int            `json:"frames_total" db:"frames_total"`
	FramesFailed int            `json:"frames_failed" db:"frames_failed"`
	ErrorMessage *string        `json:"error_message,omitempty" db:"error_message"`
	Diagnostics  []Diagnostic   `json:"diagnostics,omitempty" db:"-"`
	Frames       []*FrameResult `json:"frames,omitempty" db:"-"`
}

// FrameResult records what was sent for one record and how the device answered
type FrameResult struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	RunID       uuid.UUID   `json:"run_id" db:"run_id"`
	Sequence    int         `json:"sequence" db:"sequence"`
	Record      string      `json:"record" db:"record"`
	CommandCode byte        `json:"command_code" db:"command_code"`
	Hex         string      `json:"hex" db:"hex"`
	Status      FrameStatus `json:"status" db:"status"`
	Error       *string     `json:"error,omitempty" db:"error"`
	DurationMs  int         `json:"duration_ms" db:"duration_ms"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// Succeeded reports whether the run produced at least one frame and no frame failed
func (r *Run) Succeeded() bool {
	return r.FramesTotal > 0 && r.FramesFailed == 0
}

// EventType represents the type of run event
type EventType string

const (
	EventRunStarted   EventType = "RUN_STARTED"
	EventFrameSent    EventType = "FRAME_SENT"
	EventFrameFailed  EventType = "FRAME_FAILED"
	EventFrameEncoded EventType = "FRAME_ENCODED"
	EventRunCompleted EventType = "RUN_COMPLETED"
)

// RunEvent is published while a run progresses
type RunEvent struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	RunID     uuid.UUID      `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewRunEvent creates a timestamped event for a run
func NewRunEvent(eventType EventType, runID uuid.UUID, data map[string]any) RunEvent {
	return RunEvent{
		ID:        uuid.New(),
		Type:      eventType,
		RunID:     runID,
		Data:      data,
		Timestamp: time.Now(),
	}
}
