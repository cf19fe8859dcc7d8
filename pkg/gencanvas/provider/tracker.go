package provider

import (
	"context"
	"sync"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// Tracker records terminal results of asynchronous generation jobs,
// keyed by node id. It is the in-process implementation of the
// status-check interface: unknown and unfinished jobs both read as
// pending, so checks are idempotent and safe to repeat.
type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]gencanvas.StatusCheck
}

// Compile-time interface checks.
var (
	_ gencanvas.StatusChecker = (*Tracker)(nil)
	_ gencanvas.JobResetter   = (*Tracker)(nil)
)

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]gencanvas.StatusCheck)}
}

// Complete records a successful result for a node's job.
func (t *Tracker) Complete(nodeID, resultURL string, kind gencanvas.ArtifactKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[nodeID] = gencanvas.StatusCheck{
		State:     gencanvas.JobSuccess,
		ResultURL: resultURL,
		Kind:      kind,
	}
}

// Fail records a terminal failure for a node's job.
func (t *Tracker) Fail(nodeID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[nodeID] = gencanvas.StatusCheck{
		State:   gencanvas.JobFailed,
		Message: message,
	}
}

// Clear forgets a node's job, e.g. when the node is deleted or
// re-dispatched.
func (t *Tracker) Clear(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, nodeID)
}

// Check implements gencanvas.StatusChecker.
func (t *Tracker) Check(_ context.Context, nodeID string) (gencanvas.StatusCheck, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if res, ok := t.jobs[nodeID]; ok {
		return res, nil
	}
	return gencanvas.StatusCheck{State: gencanvas.JobPending}, nil
}
