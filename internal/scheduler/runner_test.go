package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairnet/internal/domain"
	"pairnet/internal/network"
	"pairnet/internal/pairing"
	"pairnet/internal/session"
	"pairnet/internal/storage/memory"
)

type fakeClassifier struct {
	mu           sync.Mutex
	participants []domain.ParticipantID
	fail         map[domain.ParticipantID]bool
	calls        []domain.ParticipantID
	block        chan struct{}
	started      chan struct{}
}

func (f *fakeClassifier) ParticipantsWithPending(context.Context) ([]domain.ParticipantID, error) {
	if f.started != nil {
		close(f.started)
		<-f.block
	}
	return f.participants, nil
}

func (f *fakeClassifier) ClassifyDueWindows(_ context.Context, p domain.ParticipantID, _ time.Time) (*pairing.DueResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()

	if f.fail[p] {
		return nil, errors.New("boom")
	}
	return &pairing.DueResult{
		Participant:  p,
		Windows:      []pairing.WindowResult{{Participant: p}},
		PairsMatched: 2,
	}, nil
}

func TestRunner_SweepContinuesPastFailures(t *testing.T) {
	f := &fakeClassifier{
		participants: []domain.ParticipantID{"A", "B", "C"},
		fail:         map[domain.ParticipantID]bool{"B": true},
	}
	r := New(Options{Classifier: f})

	res, err := r.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Participants)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, 4, res.Pairs)
	assert.Equal(t, []domain.ParticipantID{"A", "B", "C"}, f.calls)

	running, last, sweeps := r.Status()
	assert.False(t, running)
	assert.False(t, last.IsZero())
	assert.Equal(t, 1, sweeps)
}

func TestRunner_SkipsOverlappingSweep(t *testing.T) {
	f := &fakeClassifier{
		participants: []domain.ParticipantID{"A"},
		block:        make(chan struct{}),
		started:      make(chan struct{}),
	}
	r := New(Options{Classifier: f})

	done := make(chan error, 1)
	go func() {
		_, err := r.Sweep(context.Background())
		done <- err
	}()

	<-f.started
	_, err := r.Sweep(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(f.block)
	require.NoError(t, <-done)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	f := &fakeClassifier{participants: []domain.ParticipantID{"A"}}
	r := New(Options{Classifier: f, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, _, sweeps := r.Status()
	assert.GreaterOrEqual(t, sweeps, 2)
}

func TestRunner_WithNetwork(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 14, 10, 45, 0, 0, time.UTC)

	n := network.New(network.Stores{
		Tree:        memory.NewTreeStore(),
		Ledger:      memory.NewLedgerStore(),
		Events:      memory.NewPairEventStore(),
		Checkpoints: memory.NewCheckpointStore(),
	}, network.Options{
		Schedule: session.MustSchedule(session.DefaultStarts, time.UTC),
		Now:      func() time.Time { return now },
	})

	_, err := n.PlaceRoot(ctx, "U1")
	require.NoError(t, err)
	_, err = n.PlaceNode(ctx, "U1", "U2", domain.PositionLeft)
	require.NoError(t, err)
	_, err = n.PlaceNode(ctx, "U1", "U3", domain.PositionRight)
	require.NoError(t, err)

	_, err = n.RecordPurchase(ctx, "U2", "GOLD", "o1", now.Add(-4*time.Hour))
	require.NoError(t, err)
	_, err = n.RecordPurchase(ctx, "U3", "GOLD", "o2", now.Add(-3*time.Hour))
	require.NoError(t, err)
	_, err = n.RecordPurchase(ctx, "U3", "GOLD", "o3", now.Add(-2*time.Hour))
	require.NoError(t, err)

	r := New(Options{Classifier: n, Now: func() time.Time { return now }})

	res, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Participants)
	assert.Equal(t, 1, res.Pairs)
	assert.Zero(t, res.Failed)

	// Nothing new is due: the second sweep matches nothing
	res, err = r.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Pairs)
	assert.Zero(t, res.Windows)
}
