package gencanvas

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph mutation.
var (
	// ErrNodeNotFound indicates an operation referenced a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrCycle indicates a connection would make the parent graph cyclic.
	ErrCycle = errors.New("connection would create a cycle")

	// ErrSelfReference indicates a node was connected to itself.
	ErrSelfReference = errors.New("node cannot be its own parent")
)

// Sentinel errors for dispatch.
var (
	// ErrAlreadyGenerating indicates the node is LOADING and a second
	// dispatch was rejected.
	ErrAlreadyGenerating = errors.New("generation already in progress")

	// ErrNoProvider indicates no adapter is registered for the node type.
	ErrNoProvider = errors.New("no provider registered for node type")

	// ErrMissingParentResult indicates a parent node has no result to
	// feed the child's generation.
	ErrMissingParentResult = errors.New("parent result required")
)

// Sentinel errors for recovery.
var (
	// ErrRecoveryTimeout indicates a LOADING node exceeded the monitor's
	// maximum watch time and was forced to ERROR.
	ErrRecoveryTimeout = errors.New("recovery timed out")
)

// DispatchError wraps an error from a generation dispatch with node context.
type DispatchError struct {
	// NodeID is the node whose dispatch failed.
	NodeID string
	// Op is the phase that failed ("route", "validate", "submit", "generate").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DispatchError) Unwrap() error {
	return e.Err
}

// PollError wraps a status-check failure with node context. Poll errors
// are soft: the node stays LOADING and is retried on the next tick.
type PollError struct {
	// NodeID is the node whose status check failed.
	NodeID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PollError) Error() string {
	return fmt.Sprintf("status check for node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PollError) Unwrap() error {
	return e.Err
}
