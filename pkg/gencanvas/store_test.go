package gencanvas

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gencanvas/gencanvas/pkg/gencanvas/event"
)

// TestNewStore verifies basic store creation.
func TestNewStore(t *testing.T) {
	s := NewStore()
	assert.NotNil(t, s)
	assert.Equal(t, 0, s.Len())
}

// TestStore_AddNode tests adding and reading back a node.
func TestStore_AddNode(t *testing.T) {
	s := NewStore()
	n := NewNode(TypeImage)
	n.Prompt = "a red fox"
	s.AddNode(n)

	got, ok := s.Node(n.ID)
	require.True(t, ok)
	assert.Equal(t, StatusIdle, got.Status)
	assert.Equal(t, "a red fox", got.Prompt)
}

// TestStore_AddNode_DefaultsStatus tests that an empty status becomes IDLE.
func TestStore_AddNode_DefaultsStatus(t *testing.T) {
	s := NewStore()
	n := NewNode(TypeImage)
	n.Status = ""
	s.AddNode(n)

	got, _ := s.Node(n.ID)
	assert.Equal(t, StatusIdle, got.Status)
}

// TestStore_AddNode_Nil_Panics tests that a nil node panics.
func TestStore_AddNode_Nil_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "gencanvas: node cannot be nil", func() {
		NewStore().AddNode(nil)
	})
}

// TestStore_AddNode_EmptyID_Panics tests that an empty ID panics.
func TestStore_AddNode_EmptyID_Panics(t *testing.T) {
	assert.PanicsWithValue(t, "gencanvas: node ID cannot be empty", func() {
		NewStore().AddNode(&Node{Type: TypeImage})
	})
}

// TestStore_AddNode_DuplicateID_Panics tests that ID collisions panic.
func TestStore_AddNode_DuplicateID_Panics(t *testing.T) {
	s := NewStore()
	n := NewNode(TypeImage)
	s.AddNode(n)

	assert.Panics(t, func() {
		s.AddNode(&Node{ID: n.ID, Type: TypeImage})
	})
}

// TestStore_Node_ReturnsCopy tests that mutating a returned node does
// not affect the stored one.
func TestStore_Node_ReturnsCopy(t *testing.T) {
	s := NewStore()
	id := addSuccessNode(s, TypeImage, "https://example.com/a.png")

	got, _ := s.Node(id)
	got.ResultURL = "mutated"
	got.ParentIDs = append(got.ParentIDs, "x")

	again, _ := s.Node(id)
	assert.Equal(t, "https://example.com/a.png", again.ResultURL)
	assert.Empty(t, again.ParentIDs)
}

// TestStore_UpdateNode_MergesFields tests field-level merging: nil
// fields stay untouched.
func TestStore_UpdateNode_MergesFields(t *testing.T) {
	s := NewStore()
	n := NewNode(TypeImage)
	n.Prompt = "original"
	s.AddNode(n)

	ok := s.UpdateNode(n.ID, NodeUpdate{Status: ptr(StatusLoading)})
	require.True(t, ok)

	got, _ := s.Node(n.ID)
	assert.Equal(t, StatusLoading, got.Status)
	assert.Equal(t, "original", got.Prompt)
}

// TestStore_UpdateNode_NotFound tests updating a missing node.
func TestStore_UpdateNode_NotFound(t *testing.T) {
	s := NewStore()
	assert.False(t, s.UpdateNode("nope", NodeUpdate{Status: ptr(StatusError)}))
}

// TestStore_UpdateNode_RejectsSuccessWithoutResult tests the invariant
// that a node is never SUCCESS without a result URL.
func TestStore_UpdateNode_RejectsSuccessWithoutResult(t *testing.T) {
	s := NewStore()
	id := addLoadingNode(s, TypeImage)

	ok := s.UpdateNode(id, NodeUpdate{Status: ptr(StatusSuccess)})
	assert.False(t, ok)

	got, _ := s.Node(id)
	assert.Equal(t, StatusLoading, got.Status)
}

// TestStore_UpdateNode_SuccessWithExistingResult tests that SUCCESS is
// accepted when the node already holds a result URL.
func TestStore_UpdateNode_SuccessWithExistingResult(t *testing.T) {
	s := NewStore()
	id := addSuccessNode(s, TypeImage, "https://example.com/a.png")
	s.UpdateNode(id, NodeUpdate{Status: ptr(StatusLoading)})

	ok := s.UpdateNode(id, NodeUpdate{Status: ptr(StatusSuccess)})
	assert.True(t, ok)
}

// TestStore_UpdateNode_Idempotent tests that replaying the same merge
// leaves the node unchanged.
func TestStore_UpdateNode_Idempotent(t *testing.T) {
	s := NewStore()
	id := addLoadingNode(s, TypeImage)

	upd := NodeUpdate{
		Status:       ptr(StatusSuccess),
		ResultURL:    ptr("https://example.com/out.png"),
		ErrorMessage: ptr(""),
	}
	require.True(t, s.UpdateNode(id, upd))
	first, _ := s.Node(id)

	require.True(t, s.UpdateNode(id, upd))
	second, _ := s.Node(id)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ResultURL, second.ResultURL)
	assert.Equal(t, first.ErrorMessage, second.ErrorMessage)
}

// TestStore_RemoveNode tests removal and the dangling-parent behavior.
func TestStore_RemoveNode(t *testing.T) {
	s := NewStore()
	parent := addSuccessNode(s, TypeImage, "https://example.com/p.png")
	child := addIdleNode(s, TypeVideo)
	require.NoError(t, s.Connect(child, parent))

	assert.True(t, s.RemoveNode(parent))
	assert.False(t, s.RemoveNode(parent))

	// The child keeps the dangling reference; resolution tolerates it.
	got, _ := s.Node(child)
	assert.Equal(t, []string{parent}, got.ParentIDs)
}

// TestStore_Connect tests edge creation ordering and duplicates.
func TestStore_Connect(t *testing.T) {
	s := NewStore()
	a := addSuccessNode(s, TypeImage, "https://example.com/a.png")
	b := addSuccessNode(s, TypeImage, "https://example.com/b.png")
	child := addIdleNode(s, TypeImage)

	require.NoError(t, s.Connect(child, a))
	require.NoError(t, s.Connect(child, b))
	// Duplicate edge is a no-op.
	require.NoError(t, s.Connect(child, a))

	got, _ := s.Node(child)
	assert.Equal(t, []string{a, b}, got.ParentIDs)
}

// TestStore_Connect_SelfReference tests the self-edge rejection.
func TestStore_Connect_SelfReference(t *testing.T) {
	s := NewStore()
	id := addIdleNode(s, TypeImage)
	assert.ErrorIs(t, s.Connect(id, id), ErrSelfReference)
}

// TestStore_Connect_MissingNode tests connecting unknown nodes.
func TestStore_Connect_MissingNode(t *testing.T) {
	s := NewStore()
	id := addIdleNode(s, TypeImage)
	assert.ErrorIs(t, s.Connect(id, "ghost"), ErrNodeNotFound)
	assert.ErrorIs(t, s.Connect("ghost", id), ErrNodeNotFound)
}

// TestStore_Connect_Cycle tests that edges closing a cycle are rejected.
func TestStore_Connect_Cycle(t *testing.T) {
	s := NewStore()
	a := addIdleNode(s, TypeImage)
	b := addIdleNode(s, TypeImage)
	c := addIdleNode(s, TypeImage)

	require.NoError(t, s.Connect(b, a))
	require.NoError(t, s.Connect(c, b))

	assert.ErrorIs(t, s.Connect(a, c), ErrCycle)
	assert.ErrorIs(t, s.Connect(a, b), ErrCycle)
}

// TestStore_Disconnect tests edge removal.
func TestStore_Disconnect(t *testing.T) {
	s := NewStore()
	a := addIdleNode(s, TypeImage)
	child := addIdleNode(s, TypeImage)
	require.NoError(t, s.Connect(child, a))

	s.Disconnect(child, a)
	got, _ := s.Node(child)
	assert.Empty(t, got.ParentIDs)

	// Removing a non-existent edge is a no-op.
	s.Disconnect(child, a)
}

// TestStore_Nodes_PreservesInsertionOrder tests listing order.
func TestStore_Nodes_PreservesInsertionOrder(t *testing.T) {
	s := NewStore()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, addIdleNode(s, TypeImage))
	}

	nodes := s.Nodes()
	require.Len(t, nodes, 5)
	for i, n := range nodes {
		assert.Equal(t, ids[i], n.ID)
	}
}

// TestStore_Loading tests the watch-list query.
func TestStore_Loading(t *testing.T) {
	s := NewStore()
	addIdleNode(s, TypeImage)
	l1 := addLoadingNode(s, TypeVideo)
	l2 := addLoadingNode(s, TypeImage)
	addSuccessNode(s, TypeImage, "https://example.com/a.png")

	loading := s.Loading()
	require.Len(t, loading, 2)
	got := []string{loading[0].ID, loading[1].ID}
	assert.ElementsMatch(t, []string{l1, l2}, got)
}

// TestStore_PublishesChanges tests that mutations reach bus subscribers.
func TestStore_PublishesChanges(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()
	changes, cancel := bus.Subscribe(16)
	defer cancel()

	s := NewStore(WithBus(bus))
	id := addIdleNode(s, TypeImage)
	s.UpdateNode(id, NodeUpdate{Status: ptr(StatusLoading)})
	s.RemoveNode(id)

	var kinds []event.Kind
	for i := 0; i < 3; i++ {
		c := <-changes
		kinds = append(kinds, c.Kind)
		assert.Equal(t, id, c.NodeID)
	}
	assert.Equal(t, []event.Kind{event.KindAdded, event.KindUpdated, event.KindRemoved}, kinds)
}

// TestStore_ConcurrentUpdates tests merge convergence under interleaving:
// concurrent writers touching disjoint fields all land.
func TestStore_ConcurrentUpdates(t *testing.T) {
	s := NewStore()
	id := addLoadingNode(s, TypeVideo)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.UpdateNode(id, NodeUpdate{
			Status:    ptr(StatusSuccess),
			ResultURL: ptr("https://example.com/clip.mp4"),
		})
	}()
	go func() {
		defer wg.Done()
		s.UpdateNode(id, NodeUpdate{LastFrame: ptr("data:image/jpeg;base64,AAAA")})
	}()
	wg.Wait()

	got, _ := s.Node(id)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, "https://example.com/clip.mp4", got.ResultURL)
	assert.Equal(t, "data:image/jpeg;base64,AAAA", got.LastFrame)
}

// TestStore_ConcurrentAdds tests adding from many goroutines.
func TestStore_ConcurrentAdds(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddNode(&Node{ID: fmt.Sprintf("node-%d", i), Type: TypeImage})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

// TestStore_BeginGeneration tests the atomic LOADING claim: status and
// error transition together, the reset hook runs only for a successful
// claim, and a LOADING or unknown node is rejected.
func TestStore_BeginGeneration(t *testing.T) {
	s := NewStore()
	id := addIdleNode(s, TypeImage)
	s.UpdateNode(id, NodeUpdate{Status: ptr(StatusError), ErrorMessage: ptr("boom")})

	var resets []string
	claimed := s.BeginGeneration(id, func(nodeID string) { resets = append(resets, nodeID) })
	require.True(t, claimed)
	assert.Equal(t, []string{id}, resets)

	got, _ := s.Node(id)
	assert.Equal(t, StatusLoading, got.Status)
	assert.Empty(t, got.ErrorMessage)

	assert.False(t, s.BeginGeneration(id, func(string) {
		t.Error("reset ran for a failed claim")
	}))
	assert.False(t, s.BeginGeneration("ghost", nil))
}

// TestStore_BeginGeneration_ConcurrentClaims tests that racing claims on
// the same node resolve to exactly one winner.
func TestStore_BeginGeneration_ConcurrentClaims(t *testing.T) {
	s := NewStore()
	id := addIdleNode(s, TypeImage)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginGeneration(id, nil) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, _ := s.Node(id)
	assert.Equal(t, StatusLoading, got.Status)
}
