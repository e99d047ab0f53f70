package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status of a streaming job
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrNotFound is returned when no state exists for a job
	ErrNotFound = errors.New("state not found")
	// ErrExists is returned when creating a state that is already stored
	ErrExists = errors.New("state already exists")
	// ErrNotLocked is returned when refreshing a lock that is no longer held
	ErrNotLocked = errors.New("job is not locked")
)

// State represents the progress of one streaming job. RowsWritten counts
// data rows committed to the destination, which is the number of rows a
// resumed job skips.
type State struct {
	JobID       string    `json:"job_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	RowsWritten int64     `json:"rows_written"`
	BatchCount  int       `json:"batch_count"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// Manager defines the interface for progress state management
type Manager interface {
	// GetState returns the state of a job or ErrNotFound
	GetState(ctx context.Context, jobID string) (*State, error)

	// CreateState stores a new state, failing with ErrExists if one is present
	CreateState(ctx context.Context, state *State) error

	// UpdateState replaces a stored state, failing with ErrNotFound if none is present
	UpdateState(ctx context.Context, state *State) error

	// DeleteState removes the state of a job
	DeleteState(ctx context.Context, jobID string) error

	// ListStates returns every stored state
	ListStates(ctx context.Context) ([]*State, error)

	// LockState takes an exclusive lock on a job for ttl. It returns false
	// if another holder has an unexpired lock.
	LockState(ctx context.Context, jobID string, ttl time.Duration) (bool, error)

	// RefreshLock extends a held lock to expire ttl from now, failing with
	// ErrNotLocked if the lock is gone
	RefreshLock(ctx context.Context, jobID string, ttl time.Duration) error

	// UnlockState releases the lock on a job
	UnlockState(ctx context.Context, jobID string) error
}

// Manager backends
const (
	Memory     = "memory"
	File       = "file"
	Kubernetes = "kubernetes"
)

// NewManager creates a manager for the backend type. dir is used by the
// file backend and namespace by the kubernetes backend.
func NewManager(backend, dir, namespace string) (Manager, error) {
	switch backend {
	case "", Memory:
		return NewMemoryManager(), nil
	case File:
		return NewFileManager(dir)
	case Kubernetes:
		return NewInClusterManager(namespace)
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", backend)
	}
}

func validateJobID(jobID string) error {
	if jobID == "" {
		return errors.New("job ID is required")
	}
	if strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return fmt.Errorf("invalid job ID %q", jobID)
	}
	return nil
}

func (s *State) copy() *State {
	c := *s
	return &c
}
