package gencanvas

import (
	"context"
	"sync"
)

// Mode is how a provider reports completion.
type Mode int

// Provider completion modes.
const (
	// ModeSync providers resolve or fail within the Generate call.
	ModeSync Mode = iota

	// ModeAsync providers accept the job and return immediately; the
	// result is discovered later through the status-check interface.
	ModeAsync
)

// Request is the provider-neutral generation request the dispatcher
// assembles from node fields and resolved parent outputs.
type Request struct {
	// NodeID correlates the job with its node for async completion.
	NodeID string
	// Prompt is the user-entered text input.
	Prompt string
	// Inputs are resolved parent artifacts (URLs or data URIs), in
	// ParentIDs order.
	Inputs []string
	// Params is the node's generation configuration.
	Params GenerationParams
}

// Result is a resolved artifact reference from a synchronous provider.
type Result struct {
	// URL locates the artifact (remote URL or embedded data URI).
	URL string
	// Kind is the artifact media kind.
	Kind ArtifactKind
}

// Provider is one external generation backend, uniform in contract and
// opaque in implementation.
//
// ModeSync providers return a non-nil Result or an error. ModeAsync
// providers return (nil, nil) once the job is accepted and must
// eventually record a terminal state with the status-check interface
// keyed by Request.NodeID; a non-nil error from an async provider means
// the submission itself failed.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	Mode() Mode
}

// StatusChecker is the idempotent status query the recovery monitor
// polls for every LOADING node. Implementations must be safe for
// concurrent use.
type StatusChecker interface {
	Check(ctx context.Context, nodeID string) (StatusCheck, error)
}

// JobResetter discards any recorded verdict for a node's previous
// generation job. The dispatcher resets the node's entry before the node
// is marked LOADING, so a status check for the new job can never observe
// a stale terminal verdict left by the old one.
type JobResetter interface {
	Clear(nodeID string)
}

// JobState is the status-check verdict for a node's generation job.
type JobState string

// Job states.
const (
	// JobPending means the job is not finished (or not known); the node
	// stays LOADING and is re-checked on the next tick.
	JobPending JobState = "pending"

	// JobSuccess means the job finished with an artifact.
	JobSuccess JobState = "success"

	// JobFailed means the backend reported a terminal failure.
	JobFailed JobState = "failed"
)

// StatusCheck is one status-check response. Anything that is neither
// success nor an explicit terminal failure is treated as pending.
type StatusCheck struct {
	State     JobState     `json:"status"`
	ResultURL string       `json:"resultUrl,omitempty"`
	Kind      ArtifactKind `json:"type,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// FrameExtractor derives a still image (base64 data URI) from the final
// frame of a playable video resource. Extraction failures are always
// non-fatal to the generation result.
type FrameExtractor interface {
	LastFrame(ctx context.Context, videoURL string) (string, error)
}

// Set is the provider lookup table keyed by node type. The dispatcher
// routes every generation through it instead of branching on type.
type Set struct {
	mu        sync.RWMutex
	providers map[NodeType]Provider
}

// NewSet creates an empty provider set.
func NewSet() *Set {
	return &Set{providers: make(map[NodeType]Provider)}
}

// Register adds or replaces the provider for a node type.
// Panics on a nil provider.
func (s *Set) Register(t NodeType, p Provider) {
	if p == nil {
		panic("gencanvas: provider cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[t] = p
}

// Get returns the provider for a node type and whether one is registered.
func (s *Set) Get(t NodeType) (Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[t]
	return p, ok
}

// Types returns the registered node types. Order is not guaranteed.
func (s *Set) Types() []NodeType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]NodeType, 0, len(s.providers))
	for t := range s.providers {
		types = append(types, t)
	}
	return types
}
