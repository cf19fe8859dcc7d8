// Package event provides the in-memory change feed for the node graph.
//
// The store publishes a NodeChange after every successful mutation;
// subscribers (the recovery monitor, the SSE handler) receive changes on
// buffered channels. Delivery is best-effort: a slow subscriber drops
// changes rather than blocking writers, which is safe because every
// consumer re-reads authoritative state from the store.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a graph mutation.
type Kind string

// Change kinds.
const (
	KindAdded   Kind = "node.added"
	KindUpdated Kind = "node.updated"
	KindRemoved Kind = "node.removed"
)

// NodeChange describes one mutation of the node graph.
type NodeChange struct {
	// ID uniquely identifies this change.
	ID string `json:"id"`
	// Kind is the mutation kind.
	Kind Kind `json:"kind"`
	// NodeID is the mutated node.
	NodeID string `json:"nodeId"`
	// Status is the node's status after the mutation (empty for removals).
	Status string `json:"status,omitempty"`
	// At is when the mutation was applied.
	At time.Time `json:"at"`
}

// NewNodeChange creates a change record with a fresh ID and timestamp.
func NewNodeChange(kind Kind, nodeID, status string) NodeChange {
	return NodeChange{
		ID:     uuid.New().String(),
		Kind:   kind,
		NodeID: nodeID,
		Status: status,
		At:     time.Now().UTC(),
	}
}
