package gencanvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas/observability"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher translates a "generate" action on a node into a provider
// call: it resolves parent outputs into inputs, marks the node LOADING,
// and routes the request through the provider set.
//
// A node that is already LOADING is never re-dispatched; the second call
// returns ErrAlreadyGenerating and makes no provider call.
type Dispatcher struct {
	store     *Store
	providers *Set
	extractor FrameExtractor
	reset     JobResetter
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	tracing   bool
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the structured logger.
func WithDispatchLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithDispatchMetrics sets the metrics recorder.
func WithDispatchMetrics(m observability.MetricsRecorder) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatchTracing enables span creation through the given manager.
func WithDispatchTracing(sm observability.SpanManager) DispatcherOption {
	return func(d *Dispatcher) {
		d.spans = sm
		d.tracing = sm != nil
	}
}

// WithDispatchExtractor sets the frame extractor used when a synchronous
// provider returns a video result.
func WithDispatchExtractor(fe FrameExtractor) DispatcherOption {
	return func(d *Dispatcher) { d.extractor = fe }
}

// WithDispatchReset sets the job-status source whose entry for a node is
// discarded before each dispatch. Wire the same tracker the async
// providers record into; otherwise a re-dispatched node's old verdict is
// still readable while the new job runs.
func WithDispatchReset(r JobResetter) DispatcherOption {
	return func(d *Dispatcher) { d.reset = r }
}

// NewDispatcher creates a dispatcher over the given store and provider set.
// Panics if store or providers is nil.
func NewDispatcher(store *Store, providers *Set, opts ...DispatcherOption) *Dispatcher {
	if store == nil {
		panic("gencanvas: dispatcher store cannot be nil")
	}
	if providers == nil {
		panic("gencanvas: dispatcher provider set cannot be nil")
	}
	d := &Dispatcher{
		store:     store,
		providers: providers,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate dispatches a generation for the node with the given id.
//
// Failure handling follows the error taxonomy: validation and provider
// failures land on the node itself (status ERROR, ErrorMessage set) and
// are also returned to the caller wrapped in a *DispatchError. A node
// already LOADING is rejected without touching the node or the provider.
func (d *Dispatcher) Generate(ctx context.Context, nodeID string) (genErr error) {
	n, ok := d.store.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	if n.Status == StatusLoading {
		return &DispatchError{NodeID: nodeID, Op: "submit", Err: ErrAlreadyGenerating}
	}

	if d.tracing {
		var sp trace.Span
		ctx, sp = d.spans.StartDispatchSpan(ctx, nodeID, string(n.Type))
		defer func() { d.spans.EndSpanWithError(sp, genErr) }()
	}

	provider, ok := d.providers.Get(n.Type)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoProvider, n.Type)
		d.fail(nodeID, err.Error())
		observability.LogDispatchError(d.logger, nodeID, err)
		return &DispatchError{NodeID: nodeID, Op: "route", Err: err}
	}

	inputs, err := d.resolveInputs(n)
	if err != nil {
		// Validation failure: no provider call is made.
		d.fail(nodeID, err.Error())
		observability.LogDispatchError(d.logger, nodeID, err)
		return &DispatchError{NodeID: nodeID, Op: "validate", Err: err}
	}

	// The LOADING claim is atomic in the store; when dispatches race,
	// exactly one passes and the rest reject without a provider call.
	// The claim also discards the previous job's verdict before the node
	// turns LOADING: the monitor polls the status source the moment it
	// sees the transition, and must find the new job pending, not the
	// old result.
	var reset func(string)
	if d.reset != nil {
		reset = d.reset.Clear
	}
	if !d.store.BeginGeneration(nodeID, reset) {
		return &DispatchError{NodeID: nodeID, Op: "submit", Err: ErrAlreadyGenerating}
	}
	observability.LogDispatch(d.logger, nodeID, string(n.Type), len(inputs))

	req := Request{
		NodeID: nodeID,
		Prompt: n.Prompt,
		Inputs: inputs,
		Params: n.Params,
	}

	start := time.Now()
	res, err := provider.Generate(ctx, req)
	duration := time.Since(start)
	d.metrics.RecordDispatch(ctx, string(n.Type), duration, err)

	if provider.Mode() == ModeAsync {
		if err != nil {
			d.fail(nodeID, err.Error())
			observability.LogDispatchError(d.logger, nodeID, err)
			return &DispatchError{NodeID: nodeID, Op: "submit", Err: err}
		}
		// Job accepted; the recovery monitor owns completion from here.
		observability.LogJobAccepted(d.logger, nodeID, string(n.Type))
		return nil
	}

	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "generation timed out: " + msg
		}
		d.fail(nodeID, msg)
		observability.LogDispatchError(d.logger, nodeID, err)
		return &DispatchError{NodeID: nodeID, Op: "generate", Err: err}
	}
	if res == nil || res.URL == "" {
		err := errors.New("provider returned no result")
		d.fail(nodeID, err.Error())
		observability.LogDispatchError(d.logger, nodeID, err)
		return &DispatchError{NodeID: nodeID, Op: "generate", Err: err}
	}

	upd := NodeUpdate{
		Status:       ptr(StatusSuccess),
		ResultURL:    ptr(res.URL),
		ErrorMessage: ptr(""),
	}
	if res.Kind == KindVideo && d.extractor != nil {
		frame, ferr := d.extractor.LastFrame(ctx, res.URL)
		if ferr != nil {
			// Degrades gracefully: SUCCESS still lands, without a frame.
			observability.LogFrameExtractError(d.logger, nodeID, ferr)
			d.metrics.RecordFrameExtraction(ctx, false, 0)
		} else {
			upd.LastFrame = ptr(frame)
			d.metrics.RecordFrameExtraction(ctx, true, 0)
		}
	}
	d.store.UpdateNode(nodeID, upd)
	observability.LogDispatchComplete(d.logger, nodeID, float64(duration.Milliseconds()))
	return nil
}

// resolveInputs resolves parent artifacts in ParentIDs order. A deleted
// parent (dangling reference) is skipped; a parent that exists but has
// no usable result fails validation. For video parents the extracted
// last frame is preferred over the raw video URL.
func (d *Dispatcher) resolveInputs(n Node) ([]string, error) {
	if len(n.ParentIDs) == 0 {
		return nil, nil
	}
	inputs := make([]string, 0, len(n.ParentIDs))
	for _, pid := range n.ParentIDs {
		parent, ok := d.store.Node(pid)
		if !ok {
			continue
		}
		input := parent.ResultURL
		if parent.Type.Kind() == KindVideo && parent.LastFrame != "" {
			input = parent.LastFrame
		}
		if input == "" {
			return nil, fmt.Errorf("%w: parent %s has no result yet", ErrMissingParentResult, pid)
		}
		inputs = append(inputs, input)
	}
	return inputs, nil
}

// fail moves a node to ERROR with a user-facing message.
func (d *Dispatcher) fail(nodeID, msg string) {
	d.store.UpdateNode(nodeID, NodeUpdate{
		Status:       ptr(StatusError),
		ErrorMessage: ptr(msg),
	})
}
