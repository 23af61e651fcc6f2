package memory

import (
	"context"
	"sync"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[domain.ParticipantID]domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[domain.ParticipantID]domain.Checkpoint),
	}
}

// GetLastProcessed returns the participant's checkpoint.
func (s *CheckpointStore) GetLastProcessed(_ context.Context, participant domain.ParticipantID) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[participant]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &cp, nil
}

// SetLastProcessed saves the checkpoint unless it would move backwards.
func (s *CheckpointStore) SetLastProcessed(_ context.Context, cp *domain.Checkpoint) error {
	if cp == nil || cp.Participant.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[cp.Participant]; ok && existing.WindowEnd > cp.WindowEnd {
		return nil
	}
	s.data[cp.Participant] = *cp
	return nil
}

// Verify interface compliance at compile time.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)
