package gencanvas

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gencanvas/gencanvas/pkg/gencanvas/event"
	"github.com/gencanvas/gencanvas/pkg/gencanvas/observability"
	"go.opentelemetry.io/otel/trace"
)

// Default monitor tuning.
const (
	// DefaultPollInterval is the fixed delay between polling passes.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxWait is how long a node may stay continuously LOADING
	// under watch before it is forced to ERROR.
	DefaultMaxWait = 10 * time.Minute
)

// Monitor reconciles nodes stuck in LOADING - typically after a restart
// where in-flight completions were lost - by polling an idempotent
// status query per node.
//
// The watch list is re-derived from the store on every pass, so a node
// leaves it the instant its status is no longer LOADING, whichever path
// changed it. Checks across nodes are independent and failure-isolated:
// a network error on one node's check is logged and retried next tick
// without touching the node or the rest of the pass. Overlapping checks
// for the same node are harmless because every merge is an idempotent
// write of the same authoritative backend state.
type Monitor struct {
	store     *Store
	checker   StatusChecker
	bus       *event.Bus
	extractor FrameExtractor
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	tracing   bool
	interval  time.Duration
	maxWait   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	firstSeen map[string]time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithPollInterval sets the delay between polling passes.
// Non-positive values are ignored. Default: DefaultPollInterval.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxWait sets the watch ceiling after which a still-LOADING node is
// forced to ERROR with a recovery-timeout message. Zero disables the
// ceiling. Default: DefaultMaxWait.
func WithMaxWait(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d >= 0 {
			m.maxWait = d
		}
	}
}

// WithChangeFeed subscribes the monitor to the store's change bus so a
// node entering LOADING triggers an immediate pass instead of waiting
// for the next tick.
func WithChangeFeed(bus *event.Bus) MonitorOption {
	return func(m *Monitor) { m.bus = bus }
}

// WithMonitorExtractor sets the frame extractor run when a recovered
// artifact is a video.
func WithMonitorExtractor(fe FrameExtractor) MonitorOption {
	return func(m *Monitor) { m.extractor = fe }
}

// WithMonitorLogger sets the structured logger.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// WithMonitorMetrics sets the metrics recorder.
func WithMonitorMetrics(rec observability.MetricsRecorder) MonitorOption {
	return func(m *Monitor) { m.metrics = rec }
}

// WithMonitorTracing enables span creation through the given manager.
func WithMonitorTracing(sm observability.SpanManager) MonitorOption {
	return func(m *Monitor) {
		m.spans = sm
		m.tracing = sm != nil
	}
}

// NewMonitor creates a monitor over the given store and status checker.
// Panics if store or checker is nil.
func NewMonitor(store *Store, checker StatusChecker, opts ...MonitorOption) *Monitor {
	if store == nil {
		panic("gencanvas: monitor store cannot be nil")
	}
	if checker == nil {
		panic("gencanvas: monitor status checker cannot be nil")
	}
	m := &Monitor{
		store:     store,
		checker:   checker,
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		interval:  DefaultPollInterval,
		maxWait:   DefaultMaxWait,
		now:       time.Now,
		firstSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the polling loop. It issues one immediate pass (this is
// what reconciles LOADING nodes that survived a restart) and then polls
// on the fixed interval until the context is cancelled or Stop is
// called. Calling Start on a running monitor returns an error.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return errors.New("monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
	return nil
}

// Stop cancels the polling loop and waits for the current pass to finish.
// Stopping a monitor that was never started is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	var changes <-chan event.NodeChange
	if m.bus != nil {
		ch, cancelSub := m.bus.Subscribe(0)
		defer cancelSub()
		changes = ch
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		case c, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			// A node entering LOADING changes the watch set; check it
			// right away rather than waiting out the interval.
			if c.Status == string(StatusLoading) {
				m.CheckAll(ctx)
			}
		}
	}
}

// CheckAll runs one polling pass: it re-derives the watch list from the
// store and issues one independent status check per LOADING node,
// returning when all checks have finished.
func (m *Monitor) CheckAll(ctx context.Context) {
	watch := m.store.Loading()
	m.trackWatch(watch)
	if len(watch) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, n := range watch {
		wg.Add(1)
		go func(n Node) {
			defer wg.Done()
			m.checkNode(ctx, n)
		}(n)
	}
	wg.Wait()
}

// checkNode performs one status check for one node. All outcomes are
// merges through the store keyed by node id, so overlapping checks and
// a concurrent dispatcher completion converge to the same state.
func (m *Monitor) checkNode(ctx context.Context, n Node) (checkErr error) {
	waited := m.watchTime(n.ID)
	if m.maxWait > 0 && waited > m.maxWait {
		m.store.UpdateNode(n.ID, NodeUpdate{
			Status:       ptr(StatusError),
			ErrorMessage: ptr(ErrRecoveryTimeout.Error()),
		})
		m.clearWatch(n.ID)
		observability.LogRecoveryFailed(m.logger, n.ID, ErrRecoveryTimeout.Error())
		m.metrics.RecordRecovery(ctx, false, waited)
		return ErrRecoveryTimeout
	}

	if m.tracing {
		var sp trace.Span
		ctx, sp = m.spans.StartPollSpan(ctx, n.ID)
		defer func() { m.spans.EndSpanWithError(sp, checkErr) }()
	}

	res, err := m.checker.Check(ctx, n.ID)
	m.metrics.RecordPoll(ctx, err)
	if err != nil {
		// Soft failure: the node stays LOADING and is retried next tick.
		perr := &PollError{NodeID: n.ID, Err: err}
		observability.LogPollError(m.logger, n.ID, err)
		return perr
	}

	switch res.State {
	case JobSuccess:
		if res.ResultURL == "" {
			// Malformed success; treat as still pending and retry.
			return nil
		}
		upd := NodeUpdate{
			Status:       ptr(StatusSuccess),
			ResultURL:    ptr(res.ResultURL),
			ErrorMessage: ptr(""),
		}
		if res.Kind == KindVideo && m.extractor != nil {
			frame, ferr := m.extractor.LastFrame(ctx, res.ResultURL)
			if ferr != nil {
				// Non-fatal: SUCCESS lands without a last frame.
				observability.LogFrameExtractError(m.logger, n.ID, ferr)
				m.metrics.RecordFrameExtraction(ctx, false, 0)
			} else {
				upd.LastFrame = ptr(frame)
				m.metrics.RecordFrameExtraction(ctx, true, 0)
			}
		}
		m.store.UpdateNode(n.ID, upd)
		m.clearWatch(n.ID)
		observability.LogRecovered(m.logger, n.ID, string(res.Kind), waited)
		m.metrics.RecordRecovery(ctx, true, waited)
		return nil

	case JobFailed:
		msg := res.Message
		if msg == "" {
			msg = "generation failed"
		}
		m.store.UpdateNode(n.ID, NodeUpdate{
			Status:       ptr(StatusError),
			ErrorMessage: ptr(msg),
		})
		m.clearWatch(n.ID)
		observability.LogRecoveryFailed(m.logger, n.ID, msg)
		m.metrics.RecordRecovery(ctx, false, waited)
		return nil

	default:
		// Pending, or an unrecognized response: no-op, retry next tick.
		return nil
	}
}

// trackWatch records when each node was first observed LOADING and
// forgets nodes that have left the watch list.
func (m *Monitor) trackWatch(watch []Node) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]bool, len(watch))
	now := m.now()
	for _, n := range watch {
		current[n.ID] = true
		if _, ok := m.firstSeen[n.ID]; !ok {
			m.firstSeen[n.ID] = now
		}
	}
	for id := range m.firstSeen {
		if !current[id] {
			delete(m.firstSeen, id)
		}
	}
}

// watchTime returns how long a node has been continuously watched.
func (m *Monitor) watchTime(nodeID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	since, ok := m.firstSeen[nodeID]
	if !ok {
		return 0
	}
	return m.now().Sub(since)
}

func (m *Monitor) clearWatch(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.firstSeen, nodeID)
}
