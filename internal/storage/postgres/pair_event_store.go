package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// PairEventStore implements storage.PairEventStore using PostgreSQL.
type PairEventStore struct {
	pool *Pool
}

// NewPairEventStore creates a new PairEventStore.
func NewPairEventStore(pool *Pool) *PairEventStore {
	return &PairEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PairEventStore = (*PairEventStore)(nil)

const pairEventColumns = `event_id, participant_id, leg, tier, source_ref, seq, created_at,
	matched, pair_id, window_index, window_end`

// Insert adds a new pending event and assigns its Seq.
func (s *PairEventStore) Insert(ctx context.Context, e *domain.PairEvent) (err error) {
	defer func(started time.Time) { observe("pair_insert", started, err) }(time.Now())

	if e == nil || e.EventID == "" || e.Participant.IsZero() || !e.Leg.IsValid() || e.Tier == "" {
		return storage.ErrInvalidInput
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO pair_events (event_id, participant_id, leg, tier, source_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, e.EventID, string(e.Participant), string(e.Leg), string(e.Tier), e.SourceRef, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pair event: %w", err)
	}
	return nil
}

// GetByParticipant retrieves all events for a participant in FIFO order.
func (s *PairEventStore) GetByParticipant(ctx context.Context, participant domain.ParticipantID) (events []*domain.PairEvent, err error) {
	defer func(started time.Time) { observe("pair_get", started, err) }(time.Now())

	return s.query(ctx, `
		SELECT `+pairEventColumns+`
		FROM pair_events
		WHERE participant_id = $1
		ORDER BY created_at ASC, seq ASC
	`, string(participant))
}

// GetPending retrieves pending events created strictly before cutoff.
func (s *PairEventStore) GetPending(ctx context.Context, participant domain.ParticipantID, cutoff int64) (events []*domain.PairEvent, err error) {
	defer func(started time.Time) { observe("pair_get_pending", started, err) }(time.Now())

	return s.query(ctx, `
		SELECT `+pairEventColumns+`
		FROM pair_events
		WHERE participant_id = $1 AND NOT matched AND created_at < $2
		ORDER BY created_at ASC, seq ASC
	`, string(participant), cutoff)
}

// OldestPending returns the oldest pending event.
func (s *PairEventStore) OldestPending(ctx context.Context, participant domain.ParticipantID) (e *domain.PairEvent, err error) {
	defer func(started time.Time) { observe("pair_oldest_pending", started, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `
		SELECT `+pairEventColumns+`
		FROM pair_events
		WHERE participant_id = $1 AND NOT matched
		ORDER BY created_at ASC, seq ASC
		LIMIT 1
	`, string(participant))
	e, err = scanPairEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get oldest pending event: %w", err)
	}
	return e, nil
}

// MarkMatched marks both events of every pair as matched in one transaction.
// Each update only touches rows that are still pending on the expected leg,
// so a pair that lost a race affects fewer than two rows and the whole batch
// rolls back.
func (s *PairEventStore) MarkMatched(ctx context.Context, pairs []domain.PairMatch) (err error) {
	defer func(started time.Time) { observe("pair_mark_matched", started, err) }(time.Now())

	if len(pairs) == 0 {
		return nil
	}
	for _, p := range pairs {
		if p.PairID == "" || p.LeftEventID == "" || p.RightEventID == "" || p.LeftEventID == p.RightEventID {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range pairs {
		tag, err := tx.Exec(ctx, `
			UPDATE pair_events
			SET matched = TRUE, pair_id = $1, window_index = $2, window_end = $3
			WHERE participant_id = $4 AND tier = $5 AND NOT matched
			  AND ((event_id = $6 AND leg = 'LEFT') OR (event_id = $7 AND leg = 'RIGHT'))
		`, p.PairID, p.WindowIndex, p.WindowEnd, string(p.Participant), string(p.Tier), p.LeftEventID, p.RightEventID)
		if err != nil {
			return fmt.Errorf("mark pair %s: %w", p.PairID, err)
		}
		if tag.RowsAffected() != 2 {
			return storage.ErrPairConflict
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CountPairsBetween counts pairs whose window ended within [start, end).
func (s *PairEventStore) CountPairsBetween(ctx context.Context, start, end int64) (count int, err error) {
	defer func(started time.Time) { observe("pair_count", started, err) }(time.Now())

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pair_events
		WHERE matched AND leg = 'LEFT' AND window_end >= $1 AND window_end < $2
	`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pairs: %w", err)
	}
	return count, nil
}

// ParticipantsWithPending lists participants that have at least one pending event.
func (s *PairEventStore) ParticipantsWithPending(ctx context.Context) (result []domain.ParticipantID, err error) {
	defer func(started time.Time) { observe("pair_participants_pending", started, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT participant_id
		FROM pair_events
		WHERE NOT matched
		ORDER BY participant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query participants with pending events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		result = append(result, domain.ParticipantID(id))
	}
	return result, rows.Err()
}

func (s *PairEventStore) query(ctx context.Context, sql string, args ...any) ([]*domain.PairEvent, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query pair events: %w", err)
	}
	defer rows.Close()

	var events []*domain.PairEvent
	for rows.Next() {
		e, err := scanPairEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pair event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pair events: %w", err)
	}
	return events, nil
}

func scanPairEvent(row pgx.Row) (*domain.PairEvent, error) {
	var (
		e                      domain.PairEvent
		participant, leg, tier string
	)
	err := row.Scan(
		&e.EventID, &participant, &leg, &tier, &e.SourceRef, &e.Seq, &e.CreatedAt,
		&e.Matched, &e.PairID, &e.WindowIndex, &e.WindowEnd,
	)
	if err != nil {
		return nil, err
	}
	e.Participant = domain.ParticipantID(participant)
	e.Leg = domain.Position(leg)
	e.Tier = domain.PackageTier(tier)
	return &e, nil
}
