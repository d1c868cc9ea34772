package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/nuxlab/internal/reconcile"
)

// Run is one recorded reconciliation. The journal is an audit trail only;
// the NuageX API remains the source of truth for lab state.
type Run struct {
	ID           string           `json:"id"`
	LabName      string           `json:"lab_name"`
	Template     string           `json:"template"`
	DesiredState reconcile.State  `json:"desired_state"`
	Action       reconcile.Action `json:"action"`
	Changed      bool             `json:"changed"`
	CheckMode    bool             `json:"check_mode"`
	LabID        string           `json:"lab_id"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// NewRun starts a run record for p.
func NewRun(p reconcile.Params) *Run {
	state := p.State
	if state == "" {
		state = reconcile.StatePresent
	}
	return &Run{
		ID:           uuid.New().String(),
		LabName:      p.Name,
		Template:     p.Template,
		DesiredState: state,
		Action:       reconcile.ActionNone,
		CheckMode:    p.CheckMode,
		StartedAt:    time.Now().UTC(),
	}
}

// Finish fills in the outcome of the reconciliation.
func (r *Run) Finish(res *reconcile.Result, err error) {
	r.FinishedAt = time.Now().UTC()
	if err != nil {
		r.Error = err.Error()
		return
	}
	r.Action = res.Action
	r.Changed = res.Changed
	r.LabID = res.ID
}

// RunListOptions controls filtering and pagination for ListRuns.
type RunListOptions struct {
	LabName string
	Limit   int
	Offset  int
}

// Store is the persistence interface for the run journal.
type Store interface {
	// RecordRun inserts a finished run. The ID field must be set by the caller.
	RecordRun(ctx context.Context, r *Run) error

	// GetRun returns a run by ID or ID prefix.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns runs ordered by started_at descending.
	ListRuns(ctx context.Context, opts RunListOptions) ([]Run, error)

	// DeleteRun removes a run.
	DeleteRun(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
