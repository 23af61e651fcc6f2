package postgres

import (
	"context"
	"fmt"
	"time"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// CheckpointStore implements storage.CheckpointStore using the
// pair_checkpoints table, one row per participant.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// GetLastProcessed returns the participant's checkpoint.
func (s *CheckpointStore) GetLastProcessed(ctx context.Context, participant domain.ParticipantID) (cp *domain.Checkpoint, err error) {
	defer func(started time.Time) { observe("checkpoint_get", started, err) }(time.Now())

	cp = &domain.Checkpoint{Participant: participant}
	err = s.pool.QueryRow(ctx, `
		SELECT window_index, window_end, updated_at
		FROM pair_checkpoints
		WHERE participant_id = $1
	`, string(participant)).Scan(&cp.WindowIndex, &cp.WindowEnd, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// SetLastProcessed saves the checkpoint. The upsert only overwrites an older
// window end, so concurrent writers cannot move a checkpoint backwards.
func (s *CheckpointStore) SetLastProcessed(ctx context.Context, cp *domain.Checkpoint) (err error) {
	defer func(started time.Time) { observe("checkpoint_set", started, err) }(time.Now())

	if cp == nil || cp.Participant.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pair_checkpoints (participant_id, window_index, window_end, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id) DO UPDATE
		SET window_index = EXCLUDED.window_index,
		    window_end = EXCLUDED.window_end,
		    updated_at = EXCLUDED.updated_at
		WHERE pair_checkpoints.window_end <= EXCLUDED.window_end
	`, string(cp.Participant), cp.WindowIndex, cp.WindowEnd, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
