// Package redis stores classification checkpoints in Redis, one hash per
// participant, for deployments that keep the event store in memory but want
// checkpoints to survive restarts.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"pairnet/internal/domain"
	"pairnet/internal/observability"
	"pairnet/internal/storage"
)

// DefaultPrefix is prepended to every checkpoint key.
const DefaultPrefix = "pairnet:checkpoint:"

// setCheckpoint writes the hash unless the stored window_end is newer.
const setCheckpoint = `
local current = redis.call('HGET', KEYS[1], 'window_end')
if current and tonumber(current) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], 'window_index', ARGV[1], 'window_end', ARGV[2], 'updated_at', ARGV[3])
return 1
`

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// CheckpointStore implements storage.CheckpointStore using Redis hashes.
type CheckpointStore struct {
	client *redis.Client
	prefix string
}

// NewCheckpointStore creates a checkpoint store. An empty prefix uses DefaultPrefix.
func NewCheckpointStore(client *redis.Client, prefix string) *CheckpointStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CheckpointStore{client: client, prefix: prefix}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

func (s *CheckpointStore) key(participant domain.ParticipantID) string {
	return s.prefix + string(participant)
}

// GetLastProcessed returns the participant's checkpoint.
func (s *CheckpointStore) GetLastProcessed(ctx context.Context, participant domain.ParticipantID) (cp *domain.Checkpoint, err error) {
	defer func(started time.Time) { observe("checkpoint_get", started, err) }(time.Now())

	fields, err := s.client.HGetAll(ctx, s.key(participant)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}

	cp = &domain.Checkpoint{Participant: participant}
	index, err := strconv.Atoi(fields["window_index"])
	if err != nil {
		return nil, fmt.Errorf("parse window_index for %s: %w", participant, err)
	}
	cp.WindowIndex = index
	if cp.WindowEnd, err = strconv.ParseInt(fields["window_end"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse window_end for %s: %w", participant, err)
	}
	if cp.UpdatedAt, err = strconv.ParseInt(fields["updated_at"], 10, 64); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", participant, err)
	}
	return cp, nil
}

// SetLastProcessed saves the checkpoint. The compare and write run as one
// script, so an older window end never replaces a newer one.
func (s *CheckpointStore) SetLastProcessed(ctx context.Context, cp *domain.Checkpoint) (err error) {
	defer func(started time.Time) { observe("checkpoint_set", started, err) }(time.Now())

	if cp == nil || cp.Participant.IsZero() {
		return storage.ErrInvalidInput
	}

	err = s.client.Eval(ctx, setCheckpoint, []string{s.key(cp.Participant)},
		strconv.Itoa(cp.WindowIndex),
		strconv.FormatInt(cp.WindowEnd, 10),
		strconv.FormatInt(cp.UpdatedAt, 10),
	).Err()
	if err != nil {
		return fmt.Errorf("redis eval: %w", err)
	}
	return nil
}

func observe(operation string, started time.Time, err error) {
	if domain.KindOf(err) != domain.KindInternal {
		err = nil
	}
	observability.RecordDBQuery("redis", operation, time.Since(started).Seconds(), err)
}
