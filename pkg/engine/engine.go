package engine

import "context"

// State is the lifecycle state of an asynchronous query execution.
type State string

// Query execution lifecycle states.
const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether the execution has finished, successfully or not.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Engine defines the interface for an asynchronous query execution backend.
// Submit starts an execution and returns immediately; results land as
// tabular files under outputLocation and completion is observed via Poll.
type Engine interface {
	// Submit starts executing query against database, directing result
	// files to outputLocation. Returns the execution id.
	Submit(ctx context.Context, query, database, outputLocation string) (string, error)

	// Poll returns the current state of the execution.
	Poll(ctx context.Context, executionID string) (State, error)
}
