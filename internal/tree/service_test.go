package tree

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairnet/internal/domain"
	"pairnet/internal/storage/memory"
)

func newService() *Service {
	return New(Options{
		Store: memory.NewTreeStore(),
		Now:   func() time.Time { return time.UnixMilli(1704067200000) },
	})
}

// buildFull places a complete tree of the given depth with numeric names in BFS order.
func buildFull(t *testing.T, s *Service, depth int) {
	t.Helper()
	ctx := context.Background()

	_, err := s.PlaceRoot(ctx, "n1")
	require.NoError(t, err)

	last := 1<<(depth+1) - 1
	for i := 2; i <= last; i++ {
		parent := domain.ParticipantID(fmt.Sprintf("n%d", i/2))
		pos := domain.PositionLeft
		if i%2 == 1 {
			pos = domain.PositionRight
		}
		_, err := s.Place(ctx, parent, domain.ParticipantID(fmt.Sprintf("n%d", i)), pos)
		require.NoError(t, err)
	}
}

func TestService_ScenarioA_DownlineOrder(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, err := s.PlaceRoot(ctx, "U1")
	require.NoError(t, err)
	_, err = s.Place(ctx, "U1", "U2", domain.PositionLeft)
	require.NoError(t, err)
	_, err = s.Place(ctx, "U1", "U3", domain.PositionRight)
	require.NoError(t, err)

	got, err := s.Downline(ctx, "U1", 1)
	require.NoError(t, err)

	assert.Equal(t, []domain.DownlineEntry{
		{Participant: "U2", Depth: 1},
		{Participant: "U3", Depth: 1},
	}, got)
}

func TestService_ScenarioB_SlotOccupied(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, _ = s.PlaceRoot(ctx, "U1")
	_, err := s.Place(ctx, "U1", "U2", domain.PositionLeft)
	require.NoError(t, err)

	_, err = s.Place(ctx, "U1", "U4", domain.PositionLeft)
	assert.ErrorIs(t, err, ErrSlotOccupied)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	root, err := s.Lookup(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, domain.ParticipantID("U2"), root.Left)

	_, err = s.Lookup(ctx, "U4")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestService_PlaceErrors(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, _ = s.PlaceRoot(ctx, "U1")
	_, _ = s.Place(ctx, "U1", "U2", domain.PositionLeft)

	tests := []struct {
		name     string
		parent   domain.ParticipantID
		child    domain.ParticipantID
		pos      domain.Position
		wantErr  error
		wantKind domain.ErrorKind
	}{
		{"parent missing", "ghost", "U5", domain.PositionLeft, ErrParentNotFound, domain.KindNotFound},
		{"bad position", "U1", "U5", domain.Position("MIDDLE"), ErrInvalidPosition, domain.KindInvalidInput},
		{"already placed", "U2", "U1", domain.PositionLeft, ErrAlreadyPlaced, domain.KindConflict},
		{"self placement", "U1", "U1", domain.PositionRight, ErrAlreadyPlaced, domain.KindConflict},
		{"self placement unknown parent", "U7", "U7", domain.PositionRight, ErrParentNotFound, domain.KindNotFound},
		{"empty child", "U1", "", domain.PositionRight, ErrInvalidParticipant, domain.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Place(ctx, tt.parent, tt.child, tt.pos)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
		})
	}
}

func TestService_SecondRoot(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, err := s.PlaceRoot(ctx, "U1")
	require.NoError(t, err)
	_, err = s.PlaceRoot(ctx, "U2")
	assert.ErrorIs(t, err, ErrRootExists)
}

func TestService_DepthInvariant(t *testing.T) {
	s := newService()
	ctx := context.Background()
	buildFull(t, s, 4)

	for i := 1; i < 32; i++ {
		node, err := s.Lookup(ctx, domain.ParticipantID(fmt.Sprintf("n%d", i)))
		require.NoError(t, err)

		if node.IsRoot() {
			assert.Equal(t, 0, node.Depth)
			continue
		}
		parent, err := s.Lookup(ctx, node.Parent)
		require.NoError(t, err)
		assert.Equal(t, parent.Depth+1, node.Depth, "node %s", node.Participant)
		assert.Equal(t, node.Participant, parent.Child(node.Position))
	}
}

func TestService_DownlineBounded(t *testing.T) {
	s := newService()
	ctx := context.Background()
	buildFull(t, s, 4)

	for k := 0; k <= 5; k++ {
		got, err := s.Downline(ctx, "n1", k)
		require.NoError(t, err)

		want := 1<<(min(k, 4)+1) - 2
		assert.Len(t, got, want, "maxDepth %d", k)
		for _, e := range got {
			assert.GreaterOrEqual(t, e.Depth, 1)
			assert.LessOrEqual(t, e.Depth, k)
		}
	}

	// BFS order over a complete tree matches heap numbering
	got, err := s.Downline(ctx, "n1", 3)
	require.NoError(t, err)
	for i, e := range got {
		assert.Equal(t, domain.ParticipantID(fmt.Sprintf("n%d", i+2)), e.Participant)
	}
}

func TestService_DownlineSkipsEmptySlots(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, _ = s.PlaceRoot(ctx, "A")
	_, _ = s.Place(ctx, "A", "B", domain.PositionRight)
	_, _ = s.Place(ctx, "B", "C", domain.PositionLeft)
	_, _ = s.Place(ctx, "B", "D", domain.PositionRight)
	_, _ = s.Place(ctx, "C", "E", domain.PositionRight)

	got, err := s.Downline(ctx, "A", 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.DownlineEntry{
		{Participant: "B", Depth: 1},
		{Participant: "C", Depth: 2},
		{Participant: "D", Depth: 2},
		{Participant: "E", Depth: 3},
	}, got)

	// Depth is relative to the queried root
	got, err = s.Downline(ctx, "B", 1)
	require.NoError(t, err)
	assert.Equal(t, []domain.DownlineEntry{
		{Participant: "C", Depth: 1},
		{Participant: "D", Depth: 1},
	}, got)
}

func TestService_DownlineEdgeCases(t *testing.T) {
	s := newService()
	ctx := context.Background()

	_, err := s.Downline(ctx, "nobody", 3)
	assert.ErrorIs(t, err, ErrRootNotFound)

	_, _ = s.PlaceRoot(ctx, "solo")
	got, err := s.Downline(ctx, "solo", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Downline(ctx, "solo", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.Downline(ctx, "solo", -1)
	assert.ErrorIs(t, err, ErrInvalidDepth)
}

func TestService_Ancestors(t *testing.T) {
	s := newService()
	ctx := context.Background()
	buildFull(t, s, 3)

	// n13 = n6.right, n6 = n3.left, n3 = n1.right
	got, err := s.Ancestors(ctx, "n13")
	require.NoError(t, err)
	assert.Equal(t, []domain.Ancestor{
		{Participant: "n6", Leg: domain.PositionRight, Distance: 1},
		{Participant: "n3", Leg: domain.PositionLeft, Distance: 2},
		{Participant: "n1", Leg: domain.PositionRight, Distance: 3},
	}, got)

	got, err = s.Ancestors(ctx, "n1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_ConcurrentSlotFill(t *testing.T) {
	s := newService()
	ctx := context.Background()
	_, _ = s.PlaceRoot(ctx, "root")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Place(ctx, "root", domain.ParticipantID(fmt.Sprintf("c%d", i)), domain.PositionRight)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrSlotOccupied)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
