package pairing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairnet/internal/domain"
	"pairnet/internal/session"
	"pairnet/internal/storage/memory"
	"pairnet/internal/tree"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 14, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	tree        *tree.Service
	events      *memory.PairEventStore
	checkpoints *memory.CheckpointStore
	classifier  *Classifier
}

// newFixture builds U1 with U2 on the left and U3 on the right.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	treeSvc := tree.New(tree.Options{Store: memory.NewTreeStore()})
	_, err := treeSvc.PlaceRoot(ctx, "U1")
	require.NoError(t, err)
	_, err = treeSvc.Place(ctx, "U1", "U2", domain.PositionLeft)
	require.NoError(t, err)
	_, err = treeSvc.Place(ctx, "U1", "U3", domain.PositionRight)
	require.NoError(t, err)

	f := &fixture{
		tree:        treeSvc,
		events:      memory.NewPairEventStore(),
		checkpoints: memory.NewCheckpointStore(),
	}
	f.classifier = New(Options{
		Tree:        treeSvc,
		Events:      f.events,
		Checkpoints: f.checkpoints,
		Clock:       session.NewClock(session.MustSchedule(session.DefaultStarts, time.UTC)),
		Now:         func() time.Time { return at(23, 0) },
	})
	return f
}

func (f *fixture) record(t *testing.T, leg domain.Position, tier domain.PackageTier, ref string, when time.Time) *domain.PairEvent {
	t.Helper()
	e, err := f.classifier.RecordLegEvent(context.Background(), "U1", leg, tier, ref, when)
	require.NoError(t, err)
	return e
}

func matchedIDs(t *testing.T, f *fixture) map[string]bool {
	t.Helper()
	events, err := f.events.GetByParticipant(context.Background(), "U1")
	require.NoError(t, err)
	out := make(map[string]bool)
	for _, e := range events {
		out[e.EventID] = e.Matched
	}
	return out
}

func TestClassifier_ScenarioE(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t1 := f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 10))
	t2 := f.record(t, domain.PositionLeft, "GOLD", "o2", at(6, 20))
	t3 := f.record(t, domain.PositionRight, "GOLD", "o3", at(6, 30))

	res, err := f.classifier.Classify(ctx, "U1", at(8, 15))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Window.Index)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, t1.EventID, res.Pairs[0].LeftEventID)
	assert.Equal(t, t3.EventID, res.Pairs[0].RightEventID)

	state := matchedIDs(t, f)
	assert.True(t, state[t1.EventID])
	assert.True(t, state[t3.EventID])
	assert.False(t, state[t2.EventID])

	pending, err := f.classifier.PendingQueue(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, t2.EventID, pending[0].EventID)
}

func TestClassifier_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 10))
	f.record(t, domain.PositionRight, "GOLD", "o2", at(6, 20))
	f.record(t, domain.PositionRight, "GOLD", "o3", at(6, 30))

	first, err := f.classifier.Classify(ctx, "U1", at(9, 0))
	require.NoError(t, err)
	before := matchedIDs(t, f)

	second, err := f.classifier.Classify(ctx, "U1", at(9, 0))
	require.NoError(t, err)

	assert.Len(t, first.Pairs, 1)
	assert.Empty(t, second.Pairs)
	assert.Equal(t, before, matchedIDs(t, f))
}

func TestClassifier_WindowNotClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clock := session.NewClock(session.MustSchedule(session.DefaultStarts, time.UTC))
	open, err := clock.Current(at(7, 0))
	require.NoError(t, err)

	_, err = f.classifier.ClassifyWindow(ctx, "U1", open, at(7, 0))
	assert.ErrorIs(t, err, ErrWindowNotClosed)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestClassifier_EventsAfterWindowEndWait(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(7, 0))
	f.record(t, domain.PositionRight, "GOLD", "o2", at(8, 30)) // window 2

	res, err := f.classifier.Classify(ctx, "U1", at(9, 0)) // last closed: window 1
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)

	res, err = f.classifier.Classify(ctx, "U1", at(10, 30)) // window 2 closes
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 2, res.Pairs[0].WindowIndex)
}

func TestClassifier_TiersDoNotCrossMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 1))
	f.record(t, domain.PositionRight, "SILVER", "o2", at(6, 2))
	f.record(t, domain.PositionLeft, "SILVER", "o3", at(6, 3))
	f.record(t, domain.PositionRight, "SILVER", "o4", at(6, 4))

	res, err := f.classifier.Classify(ctx, "U1", at(8, 15))
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, domain.PackageTier("SILVER"), res.Pairs[0].Tier)

	summary, err := f.classifier.Summary(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, []domain.TierSummary{
		{Tier: "GOLD", Pending: 1, PendingLeft: 1},
		{Tier: "SILVER", Matched: 2, Pairs: 1},
	}, summary)
}

func TestClassifier_SameTimestampUsesInsertionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 0))
	f.record(t, domain.PositionLeft, "GOLD", "o2", at(6, 0))
	f.record(t, domain.PositionRight, "GOLD", "o3", at(6, 5))

	res, err := f.classifier.Classify(ctx, "U1", at(8, 15))
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, first.EventID, res.Pairs[0].LeftEventID)
}

func TestClassifier_ParticipantNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.classifier.Classify(ctx, "ghost", at(9, 0))
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = f.classifier.ClassifyDueWindows(ctx, "ghost", at(9, 0))
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	_, err = f.classifier.PendingQueue(ctx, "ghost")
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestClassifier_RecordLegEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.classifier.RecordLegEvent(ctx, "U1", domain.PositionNone, "GOLD", "x", at(6, 0))
	assert.ErrorIs(t, err, ErrInvalidLeg)

	_, err = f.classifier.RecordLegEvent(ctx, "U1", domain.PositionLeft, "", "x", at(6, 0))
	assert.ErrorIs(t, err, ErrInvalidTier)

	// U2 has no children
	_, err = f.classifier.RecordLegEvent(ctx, "U2", domain.PositionLeft, "GOLD", "x", at(6, 0))
	assert.ErrorIs(t, err, ErrEmptyLeg)

	f.record(t, domain.PositionLeft, "GOLD", "dup", at(6, 0))
	_, err = f.classifier.RecordLegEvent(ctx, "U1", domain.PositionLeft, "GOLD", "dup", at(6, 0))
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestClassifier_RecordPurchasePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tree.Place(ctx, "U2", "U4", domain.PositionRight)
	require.NoError(t, err)

	events, err := f.classifier.RecordPurchase(ctx, "U4", "GOLD", "order-1", at(6, 0))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.ParticipantID("U2"), events[0].Participant)
	assert.Equal(t, domain.PositionRight, events[0].Leg)
	assert.Equal(t, domain.ParticipantID("U1"), events[1].Participant)
	assert.Equal(t, domain.PositionLeft, events[1].Leg)

	// Retry is harmless
	again, err := f.classifier.RecordPurchase(ctx, "U4", "GOLD", "order-1", at(6, 0))
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = f.classifier.RecordPurchase(ctx, "ghost", "GOLD", "order-2", at(6, 0))
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestClassifier_ClassifyDueWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 10))  // window 1
	f.record(t, domain.PositionRight, "GOLD", "o2", at(9, 0))  // window 2
	f.record(t, domain.PositionLeft, "GOLD", "o3", at(11, 0))  // window 3
	f.record(t, domain.PositionRight, "GOLD", "o4", at(11, 5)) // window 3

	res, err := f.classifier.ClassifyDueWindows(ctx, "U1", at(13, 0))
	require.NoError(t, err)

	require.Len(t, res.Windows, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{res.Windows[0].Window.Index, res.Windows[1].Window.Index, res.Windows[2].Window.Index})
	assert.Empty(t, res.Windows[0].Pairs)
	assert.Len(t, res.Windows[1].Pairs, 1)
	assert.Len(t, res.Windows[2].Pairs, 1)
	assert.Equal(t, 2, res.PairsMatched)

	cp, err := f.checkpoints.GetLastProcessed(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 3, cp.WindowIndex)
	assert.Equal(t, at(12, 45).UnixMilli(), cp.WindowEnd)

	// Nothing new: re-running processes no windows
	res, err = f.classifier.ClassifyDueWindows(ctx, "U1", at(13, 0))
	require.NoError(t, err)
	assert.Empty(t, res.Windows)
	assert.Zero(t, res.PairsMatched)
}

func TestClassifier_ClassifyDueWindowsSkipsProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 10))
	_, err := f.classifier.ClassifyDueWindows(ctx, "U1", at(9, 0))
	require.NoError(t, err)

	f.record(t, domain.PositionRight, "GOLD", "o2", at(9, 30))
	res, err := f.classifier.ClassifyDueWindows(ctx, "U1", at(10, 30))
	require.NoError(t, err)

	require.Len(t, res.Windows, 1)
	assert.Equal(t, 2, res.Windows[0].Window.Index)
	assert.Equal(t, 1, res.PairsMatched)
}

func TestClassifier_ClassifyDueWindowsWithoutPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.classifier.ClassifyDueWindows(ctx, "U1", at(9, 0))
	require.NoError(t, err)
	assert.Empty(t, res.Windows)
	require.NotNil(t, res.Checkpoint)
	assert.Equal(t, at(8, 15).UnixMilli(), res.Checkpoint.WindowEnd)
}

func TestClassifier_CountPairsBetween(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.record(t, domain.PositionLeft, "GOLD", "o1", at(6, 10))
	f.record(t, domain.PositionRight, "GOLD", "o2", at(6, 20))
	_, err := f.classifier.Classify(ctx, "U1", at(8, 15))
	require.NoError(t, err)

	n, err := f.classifier.CountPairsBetween(ctx, at(0, 0), at(23, 59))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Both bounds are inclusive
	n, err = f.classifier.CountPairsBetween(ctx, at(0, 0), at(8, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.classifier.CountPairsBetween(ctx, at(8, 15), at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.classifier.CountPairsBetween(ctx, at(8, 16), at(9, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClassifier_ConcurrentClassificationPairsEachEventOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const events = 50
	for i := 0; i < events; i++ {
		when := at(6, 10).Add(time.Duration(i) * time.Second)
		f.record(t, domain.PositionLeft, "GOLD", fmt.Sprintf("l%d", i), when)
		f.record(t, domain.PositionRight, "GOLD", fmt.Sprintf("r%d", i), when)
	}

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		pairs []domain.PairMatch
		errs  []error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()

			var (
				got []domain.PairMatch
				err error
			)
			if w%2 == 0 {
				var res *WindowResult
				if res, err = f.classifier.Classify(ctx, "U1", at(8, 15)); err == nil {
					got = res.Pairs
				}
			} else {
				var res *DueResult
				if res, err = f.classifier.ClassifyDueWindows(ctx, "U1", at(8, 15)); err == nil {
					for _, wr := range res.Windows {
						got = append(got, wr.Pairs...)
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			pairs = append(pairs, got...)
		}(w)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, pairs, events)

	seen := make(map[string]bool)
	for _, p := range pairs {
		for _, id := range []string{p.LeftEventID, p.RightEventID} {
			assert.False(t, seen[id], "event %s paired twice", id)
			seen[id] = true
		}
	}

	summary, err := f.classifier.Summary(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, events, summary[0].Pairs)
	assert.Zero(t, summary[0].Pending)
}
