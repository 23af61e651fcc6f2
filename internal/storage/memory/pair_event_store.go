package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// pairBucket holds one participant's events.
type pairBucket struct {
	mu     sync.RWMutex
	events []*domain.PairEvent // insertion order
	byID   map[string]*domain.PairEvent
}

// PairEventStore is an in-memory implementation of storage.PairEventStore.
type PairEventStore struct {
	buckets sync.Map // domain.ParticipantID -> *pairBucket
	ids     sync.Map // event_id -> domain.ParticipantID
	seq     atomic.Int64
}

// NewPairEventStore creates a new in-memory pair event store.
func NewPairEventStore() *PairEventStore {
	return &PairEventStore{}
}

func (s *PairEventStore) bucket(participant domain.ParticipantID) *pairBucket {
	v, _ := s.buckets.LoadOrStore(participant, &pairBucket{byID: make(map[string]*domain.PairEvent)})
	return v.(*pairBucket)
}

// Insert adds a new pending event and assigns its Seq.
func (s *PairEventStore) Insert(_ context.Context, e *domain.PairEvent) error {
	if e == nil || e.EventID == "" || e.Participant.IsZero() || !e.Leg.IsValid() || e.Tier == "" {
		return storage.ErrInvalidInput
	}

	if _, loaded := s.ids.LoadOrStore(e.EventID, e.Participant); loaded {
		return storage.ErrDuplicateKey
	}

	b := s.bucket(e.Participant)
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Seq = s.seq.Add(1)

	eventCopy := *e
	eventCopy.Matched = false
	eventCopy.PairID = ""
	eventCopy.WindowIndex = 0
	eventCopy.WindowEnd = 0
	b.events = append(b.events, &eventCopy)
	b.byID[eventCopy.EventID] = &eventCopy
	return nil
}

// GetByParticipant retrieves all events for a participant in FIFO order.
func (s *PairEventStore) GetByParticipant(_ context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error) {
	return s.collect(participant, func(*domain.PairEvent) bool { return true }), nil
}

// GetPending retrieves pending events created strictly before cutoff.
func (s *PairEventStore) GetPending(_ context.Context, participant domain.ParticipantID, cutoff int64) ([]*domain.PairEvent, error) {
	return s.collect(participant, func(e *domain.PairEvent) bool {
		return !e.Matched && e.CreatedAt < cutoff
	}), nil
}

// OldestPending returns the oldest pending event.
func (s *PairEventStore) OldestPending(_ context.Context, participant domain.ParticipantID) (*domain.PairEvent, error) {
	pending := s.collect(participant, func(e *domain.PairEvent) bool { return !e.Matched })
	if len(pending) == 0 {
		return nil, storage.ErrNotFound
	}
	return pending[0], nil
}

func (s *PairEventStore) collect(participant domain.ParticipantID, keep func(*domain.PairEvent) bool) []*domain.PairEvent {
	v, ok := s.buckets.Load(participant)
	if !ok {
		return nil
	}
	b := v.(*pairBucket)

	b.mu.RLock()
	var result []*domain.PairEvent
	for _, e := range b.events {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	b.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result
}

// MarkMatched marks both events of every pair as matched, atomically.
func (s *PairEventStore) MarkMatched(_ context.Context, pairs []domain.PairMatch) error {
	if len(pairs) == 0 {
		return nil
	}

	// Lock every affected bucket in a stable order.
	participants := make([]domain.ParticipantID, 0, 1)
	seen := make(map[domain.ParticipantID]bool)
	for _, p := range pairs {
		if p.PairID == "" || p.LeftEventID == "" || p.RightEventID == "" || p.LeftEventID == p.RightEventID {
			return storage.ErrInvalidInput
		}
		if !seen[p.Participant] {
			seen[p.Participant] = true
			participants = append(participants, p.Participant)
		}
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

	buckets := make(map[domain.ParticipantID]*pairBucket, len(participants))
	for _, id := range participants {
		v, ok := s.buckets.Load(id)
		if !ok {
			return storage.ErrPairConflict
		}
		buckets[id] = v.(*pairBucket)
	}
	for _, id := range participants {
		buckets[id].mu.Lock()
		defer buckets[id].mu.Unlock()
	}

	// Validate the whole batch before touching anything.
	claimed := make(map[string]bool, len(pairs)*2)
	for _, p := range pairs {
		b := buckets[p.Participant]
		left, right := b.byID[p.LeftEventID], b.byID[p.RightEventID]
		if left == nil || right == nil || left.Matched || right.Matched ||
			left.Leg != domain.PositionLeft || right.Leg != domain.PositionRight ||
			left.Tier != p.Tier || right.Tier != p.Tier ||
			claimed[p.LeftEventID] || claimed[p.RightEventID] {
			return storage.ErrPairConflict
		}
		claimed[p.LeftEventID] = true
		claimed[p.RightEventID] = true
	}

	for _, p := range pairs {
		b := buckets[p.Participant]
		for _, e := range []*domain.PairEvent{b.byID[p.LeftEventID], b.byID[p.RightEventID]} {
			e.Matched = true
			e.PairID = p.PairID
			e.WindowIndex = p.WindowIndex
			e.WindowEnd = p.WindowEnd
		}
	}
	return nil
}

// CountPairsBetween counts pairs whose window ended within [start, end).
func (s *PairEventStore) CountPairsBetween(_ context.Context, start, end int64) (int, error) {
	count := 0
	s.buckets.Range(func(_, v any) bool {
		b := v.(*pairBucket)
		b.mu.RLock()
		for _, e := range b.events {
			if e.Matched && e.Leg == domain.PositionLeft && e.WindowEnd >= start && e.WindowEnd < end {
				count++
			}
		}
		b.mu.RUnlock()
		return true
	})
	return count, nil
}

// ParticipantsWithPending lists participants that have at least one pending event.
func (s *PairEventStore) ParticipantsWithPending(_ context.Context) ([]domain.ParticipantID, error) {
	var result []domain.ParticipantID
	s.buckets.Range(func(k, v any) bool {
		b := v.(*pairBucket)
		b.mu.RLock()
		for _, e := range b.events {
			if !e.Matched {
				result = append(result, k.(domain.ParticipantID))
				break
			}
		}
		b.mu.RUnlock()
		return true
	})

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PairEventStore = (*PairEventStore)(nil)
