package gencanvas

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDispatchError_Unwrap tests errors.Is/As through the wrapper.
func TestDispatchError_Unwrap(t *testing.T) {
	err := &DispatchError{NodeID: "n1", Op: "submit", Err: ErrAlreadyGenerating}
	assert.ErrorIs(t, err, ErrAlreadyGenerating)
	assert.Contains(t, err.Error(), "n1")
	assert.Contains(t, err.Error(), "submit")
}

// TestDispatchError_WrappedSentinel tests matching through fmt wrapping.
func TestDispatchError_WrappedSentinel(t *testing.T) {
	inner := fmt.Errorf("%w: parent p1 has no result yet", ErrMissingParentResult)
	err := &DispatchError{NodeID: "n1", Op: "validate", Err: inner}

	assert.ErrorIs(t, err, ErrMissingParentResult)

	var derr *DispatchError
	assert.ErrorAs(t, error(err), &derr)
	assert.Equal(t, "validate", derr.Op)
}

// TestPollError_Unwrap tests the poll wrapper.
func TestPollError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &PollError{NodeID: "n2", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "n2")
}

// TestSentinelMessages pins the user-facing sentinel texts.
func TestSentinelMessages(t *testing.T) {
	assert.Equal(t, "recovery timed out", ErrRecoveryTimeout.Error())
	assert.Contains(t, ErrMissingParentResult.Error(), "required")
}
