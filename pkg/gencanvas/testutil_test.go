package gencanvas

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Test doubles shared across the package tests.

// fakeProvider is a configurable Provider recording every request.
type fakeProvider struct {
	mode   Mode
	result *Result
	err    error

	mu       sync.Mutex
	requests []Request
}

func (f *fakeProvider) Generate(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeProvider) Mode() Mode { return f.mode }

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeProvider) lastRequest() Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return Request{}
	}
	return f.requests[len(f.requests)-1]
}

// syncImageProvider returns a sync provider resolving to the given URL.
func syncImageProvider(url string) *fakeProvider {
	return &fakeProvider{mode: ModeSync, result: &Result{URL: url, Kind: KindImage}}
}

// fakeChecker is a StatusChecker serving canned responses per node id.
// Unknown nodes read as pending, matching the real tracker.
type fakeChecker struct {
	mu        sync.Mutex
	responses map[string]StatusCheck
	errs      map[string]error
	checks    atomic.Int64
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		responses: make(map[string]StatusCheck),
		errs:      make(map[string]error),
	}
}

func (f *fakeChecker) set(nodeID string, res StatusCheck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[nodeID] = res
}

func (f *fakeChecker) setErr(nodeID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[nodeID] = err
}

// Clear discards the canned verdict for a node, matching the real
// tracker's reset before a re-dispatch.
func (f *fakeChecker) Clear(nodeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.responses, nodeID)
	delete(f.errs, nodeID)
}

func (f *fakeChecker) Check(_ context.Context, nodeID string) (StatusCheck, error) {
	f.checks.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[nodeID]; ok {
		return StatusCheck{}, err
	}
	if res, ok := f.responses[nodeID]; ok {
		return res, nil
	}
	return StatusCheck{State: JobPending}, nil
}

// fakeExtractor is a FrameExtractor with a fixed outcome.
type fakeExtractor struct {
	frame string
	err   error

	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) LastFrame(_ context.Context, videoURL string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, videoURL)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.frame, nil
}

var errBoom = errors.New("boom")

// addIdleNode adds a fresh node of the given type and returns its id.
func addIdleNode(s *Store, t NodeType) string {
	n := NewNode(t)
	s.AddNode(n)
	return n.ID
}

// addSuccessNode adds a node that already has a result.
func addSuccessNode(s *Store, t NodeType, resultURL string) string {
	n := NewNode(t)
	n.Status = StatusSuccess
	n.ResultURL = resultURL
	s.AddNode(n)
	return n.ID
}

// addLoadingNode adds a node stuck in LOADING, as after a restart.
func addLoadingNode(s *Store, t NodeType) string {
	n := NewNode(t)
	n.Status = StatusLoading
	s.AddNode(n)
	return n.ID
}
