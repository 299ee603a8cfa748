package scheduler

import (
	"context"
	"errors"
)

// ErrNoScope is returned by the scope resolution step when no ScopeFunc was configured.
var ErrNoScope = errors.New("no execution scope configured")

// Result is what an Executor reports for one pass over the due actions.
type Result struct {
	Success       bool   `json:"success"`
	ExecutedCount int    `json:"executed_count"`
	Failed        int    `json:"failed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Executor finds the due scheduled actions and runs them against the device API.
// Calling it when nothing is due must return Success=true and ExecutedCount=0.
type Executor interface {
	ExecutePendingActions(ctx context.Context) Result
}

// Scope holds the per-iteration resources an Executor needs (db session, clients).
type Scope interface {
	// Executor returns an error when the collaborator cannot be built in this scope.
	Executor() (Executor, error)
	// Release is called once the execution attempt is over.
	Release()
}

// ScopeFunc produces a fresh Scope for every execution attempt.
type ScopeFunc func(ctx context.Context) (Scope, error)
