// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gnss-configurator/internal/model"
)

// ErrRunNotFound is returned when a run id is not in the journal
var ErrRunNotFound = errors.New("run not found")

// RunRepository defines the provisioning journal operations
type RunRepository interface {
	// Run lifecycle
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, run *model.Run) error
	AddFrame(ctx context.Context, frame *model.FrameResult) error

	// Queries
	GetRun(ctx context.Context, id uuid.UUID) (*model.Run, error)
	ListRuns(ctx context.Context, filter *RunFilter) ([]*model.Run, int, error)

	// Cleanup
	DeleteOldRuns(ctx context.Context, olderThan time.Time) (int64, error)
}

// RunFilter represents filtering options for run listing
type RunFilter struct {
	Status  *model.RunStatus `json:"status,omitempty"`
	Port    *string          `json:"port,omitempty"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// Normalize clamps the pagination values
func (f *RunFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
}
