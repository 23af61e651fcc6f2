package storage

import (
	"context"

	"pairnet/internal/domain"
)

// CheckpointStore persists the last classified session window per participant.
// This lets delayed or repeated scheduler runs skip windows already processed.
type CheckpointStore interface {
	// GetLastProcessed returns the participant's checkpoint.
	// Returns ErrNotFound if no window has been processed yet.
	GetLastProcessed(ctx context.Context, participant domain.ParticipantID) (*domain.Checkpoint, error)

	// SetLastProcessed saves the checkpoint. A checkpoint never moves backwards:
	// an older WindowEnd than the stored one is ignored.
	SetLastProcessed(ctx context.Context, cp *domain.Checkpoint) error
}
