package provider

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gencanvas/gencanvas/pkg/gencanvas"
)

// TestTracker_UnknownJobIsPending tests the default verdict.
func TestTracker_UnknownJobIsPending(t *testing.T) {
	tr := NewTracker()
	res, err := tr.Check(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, gencanvas.JobPending, res.State)
}

// TestTracker_Complete tests recording and reading a success.
func TestTracker_Complete(t *testing.T) {
	tr := NewTracker()
	tr.Complete("n1", "https://example.com/clip.mp4", gencanvas.KindVideo)

	res, err := tr.Check(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, gencanvas.JobSuccess, res.State)
	assert.Equal(t, "https://example.com/clip.mp4", res.ResultURL)
	assert.Equal(t, gencanvas.KindVideo, res.Kind)
}

// TestTracker_Fail tests recording a terminal failure.
func TestTracker_Fail(t *testing.T) {
	tr := NewTracker()
	tr.Fail("n1", "quota exceeded")

	res, err := tr.Check(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, gencanvas.JobFailed, res.State)
	assert.Equal(t, "quota exceeded", res.Message)
}

// TestTracker_Clear tests forgetting a job.
func TestTracker_Clear(t *testing.T) {
	tr := NewTracker()
	tr.Complete("n1", "https://example.com/a.png", gencanvas.KindImage)
	tr.Clear("n1")

	res, err := tr.Check(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, gencanvas.JobPending, res.State)
}

// TestTracker_CheckIsIdempotent tests that repeated checks return the
// same verdict.
func TestTracker_CheckIsIdempotent(t *testing.T) {
	tr := NewTracker()
	tr.Complete("n1", "https://example.com/a.png", gencanvas.KindImage)

	first, _ := tr.Check(context.Background(), "n1")
	second, _ := tr.Check(context.Background(), "n1")
	assert.Equal(t, first, second)
}

// TestTracker_ConcurrentAccess tests safety under concurrent use.
func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Complete("n1", "https://example.com/a.png", gencanvas.KindImage)
		}()
		go func() {
			defer wg.Done()
			_, _ = tr.Check(context.Background(), "n1")
		}()
	}
	wg.Wait()

	res, err := tr.Check(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, gencanvas.JobSuccess, res.State)
}
