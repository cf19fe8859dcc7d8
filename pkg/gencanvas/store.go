package gencanvas

import (
	"fmt"
	"sync"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas/event"
)

// Store is the authoritative in-memory node graph.
//
// All mutations go through AddNode, UpdateNode, Connect, Disconnect and
// RemoveNode; callers never write node fields directly. Reads return
// copies, so a caller holding a stale copy cannot clobber concurrent
// updates - it must merge through UpdateNode, which re-resolves the
// current node under the store lock.
//
// Every successful mutation is published on the change bus (if one is
// attached), which is how the recovery monitor and the SSE feed learn
// about LOADING transitions.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	bus   *event.Bus
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBus attaches a change bus to the store.
func WithBus(bus *event.Bus) StoreOption {
	return func(s *Store) { s.bus = bus }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		nodes: make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode appends a fully-formed node.
//
// Panics if the node is nil, has an empty ID, or collides with an
// existing ID: these are programming errors, not recoverable conditions.
func (s *Store) AddNode(n *Node) {
	if n == nil {
		panic("gencanvas: node cannot be nil")
	}
	if n.ID == "" {
		panic("gencanvas: node ID cannot be empty")
	}

	s.mu.Lock()
	if _, exists := s.nodes[n.ID]; exists {
		s.mu.Unlock()
		panic(fmt.Sprintf("gencanvas: duplicate node ID: %s", n.ID))
	}

	stored := *n
	stored.ParentIDs = append([]string(nil), n.ParentIDs...)
	if stored.Status == "" {
		stored.Status = StatusIdle
	}
	s.nodes[n.ID] = &stored
	s.order = append(s.order, n.ID)
	s.mu.Unlock()

	s.publish(event.KindAdded, stored.ID, string(stored.Status))
}

// UpdateNode merges a partial update into the node with the given id.
// Returns false without side effects if the node does not exist, or if
// the update would leave the node SUCCESS without a result URL (that
// combination is an invariant violation and is rejected).
func (s *Store) UpdateNode(id string, upd NodeUpdate) bool {
	s.mu.Lock()

	n, ok := s.nodes[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	// Reject merges that would break the SUCCESS-implies-result invariant.
	if upd.Status != nil && *upd.Status == StatusSuccess {
		resultURL := n.ResultURL
		if upd.ResultURL != nil {
			resultURL = *upd.ResultURL
		}
		if resultURL == "" {
			s.mu.Unlock()
			return false
		}
	}

	if upd.Status != nil {
		n.Status = *upd.Status
	}
	if upd.Prompt != nil {
		n.Prompt = *upd.Prompt
	}
	if upd.ResultURL != nil {
		n.ResultURL = *upd.ResultURL
	}
	if upd.LastFrame != nil {
		n.LastFrame = *upd.LastFrame
	}
	if upd.ErrorMessage != nil {
		n.ErrorMessage = *upd.ErrorMessage
	}
	if upd.Params != nil {
		n.Params = *upd.Params
	}
	n.UpdatedAt = time.Now().UTC()
	status := n.Status
	s.mu.Unlock()

	s.publish(event.KindUpdated, id, string(status))
	return true
}

// BeginGeneration atomically claims a node for dispatch: it moves the
// node to LOADING and clears any previous error, but only if the node
// exists and is not LOADING already. The check and the transition happen
// under one lock acquisition, so of any number of concurrent dispatches
// exactly one claims the node.
//
// reset, when non-nil, runs under the same lock for a successful claim,
// before the node turns LOADING. The dispatcher passes the job-verdict
// reset here so no observer of the LOADING transition can read a stale
// entry from the node's previous job, and so a losing dispatch can never
// wipe the verdict of a job it did not start.
func (s *Store) BeginGeneration(id string, reset func(nodeID string)) bool {
	s.mu.Lock()

	n, ok := s.nodes[id]
	if !ok || n.Status == StatusLoading {
		s.mu.Unlock()
		return false
	}

	if reset != nil {
		reset(id)
	}
	n.Status = StatusLoading
	n.ErrorMessage = ""
	n.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	s.publish(event.KindUpdated, id, string(StatusLoading))
	return true
}

// RemoveNode removes a node. Children keep their dangling ParentIDs
// entry; parent resolution tolerates it. Returns false if the node does
// not exist.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	if _, ok := s.nodes[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.nodes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.publish(event.KindRemoved, id, "")
	return true
}

// Connect adds parentID to childID's parents, preserving insertion
// order. It rejects self references, unknown nodes, duplicate edges
// (silently, as a no-op) and edges that would close a cycle.
func (s *Store) Connect(childID, parentID string) error {
	if childID == parentID {
		return ErrSelfReference
	}

	s.mu.Lock()

	child, ok := s.nodes[childID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, childID)
	}
	if _, ok := s.nodes[parentID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, parentID)
	}

	for _, pid := range child.ParentIDs {
		if pid == parentID {
			s.mu.Unlock()
			return nil
		}
	}

	// The edge child->parent closes a cycle iff child is already
	// reachable walking up from parent.
	if s.reachableLocked(parentID, childID) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrCycle, childID, parentID)
	}

	child.ParentIDs = append(child.ParentIDs, parentID)
	child.UpdatedAt = time.Now().UTC()
	status := child.Status
	s.mu.Unlock()

	s.publish(event.KindUpdated, childID, string(status))
	return nil
}

// Disconnect removes parentID from childID's parents. Unknown nodes or
// absent edges are a no-op.
func (s *Store) Disconnect(childID, parentID string) {
	s.mu.Lock()
	child, ok := s.nodes[childID]
	if !ok {
		s.mu.Unlock()
		return
	}
	removed := false
	for i, pid := range child.ParentIDs {
		if pid == parentID {
			child.ParentIDs = append(child.ParentIDs[:i], child.ParentIDs[i+1:]...)
			child.UpdatedAt = time.Now().UTC()
			removed = true
			break
		}
	}
	status := child.Status
	s.mu.Unlock()

	if removed {
		s.publish(event.KindUpdated, childID, string(status))
	}
}

// reachableLocked reports whether target is reachable from start by
// walking parent edges. Caller must hold at least a read lock.
func (s *Store) reachableLocked(start, target string) bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if n, ok := s.nodes[id]; ok {
			stack = append(stack, n.ParentIDs...)
		}
	}
	return false
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(n), true
}

// Nodes returns copies of all nodes in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		if n, ok := s.nodes[id]; ok {
			out = append(out, copyNode(n))
		}
	}
	return out
}

// Loading returns copies of all nodes currently in StatusLoading, in
// insertion order. This is the recovery monitor's watch list.
func (s *Store) Loading() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for _, id := range s.order {
		if n, ok := s.nodes[id]; ok && n.Status == StatusLoading {
			out = append(out, copyNode(n))
		}
	}
	return out
}

// Len returns the number of nodes in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *Store) publish(kind event.Kind, nodeID, status string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.NewNodeChange(kind, nodeID, status))
}

func copyNode(n *Node) Node {
	c := *n
	c.ParentIDs = append([]string(nil), n.ParentIDs...)
	return c
}
