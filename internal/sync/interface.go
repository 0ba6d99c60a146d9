package sync

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadySyncing is returned when a sync is requested while another is running.
var ErrAlreadySyncing = errors.New("sync already in progress")

// Syncer keeps the local cache and the remote store in step.
type Syncer interface {
	// PullAll replaces the local copy of the user's data with the remote one.
	PullAll(ctx context.Context, userID string) error

	// PushOfflineReports uploads reports created or edited while offline.
	PushOfflineReports(ctx context.Context, userID string) (PushResult, error)

	// SyncAllData pushes offline reports, then pulls everything.
	SyncAllData(ctx context.Context, userID string) (PushResult, error)

	// Subscribe returns a channel of status changes and a function that
	// unsubscribes and closes it.
	Subscribe() (<-chan Status, func())

	// Current returns the latest status.
	Current() Status

	// ResetSyncStatus forces the state back to Idle.
	ResetSyncStatus()

	// LastSyncDate returns when the last pull completed.
	LastSyncDate() (time.Time, bool)
}

// State is a position in the sync state machine.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateCompleted
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the sync state machine.
type Status struct {
	State State
	// Progress is in [0, 1] while Syncing
	Progress float64
	// Date is set when Completed
	Date time.Time
	// Err is set when Failed
	Err error
}

// PushResult reports the outcome of a push.
type PushResult struct {
	Pushed  []string
	Failed  []string
	Skipped []string
}
