package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Amounts are stored as NUMERIC and exchanged as text to keep exact precision.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Append adds a new entry and assigns its Seq. Returns ErrDuplicateKey if entry_id exists.
func (s *LedgerStore) Append(ctx context.Context, e *domain.LedgerEntry) (err error) {
	defer func(started time.Time) { observe("ledger_append", started, err) }(time.Now())

	if e == nil || e.EntryID == "" || e.Participant.IsZero() || !e.Source.IsValid() || !e.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO ledger_entries (entry_id, participant_id, amount, source, status, remark, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)
		RETURNING seq
	`, e.EntryID, string(e.Participant), e.Amount.String(), string(e.Source), string(e.Status), e.Remark, e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByParticipant retrieves all entries for a participant, newest first.
func (s *LedgerStore) GetByParticipant(ctx context.Context, participant domain.ParticipantID) (entries []*domain.LedgerEntry, err error) {
	defer func(started time.Time) { observe("ledger_history", started, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, participant_id, seq, amount::text, source, status, remark, created_at
		FROM ledger_entries
		WHERE participant_id = $1
		ORDER BY created_at DESC, seq DESC
	`, string(participant))
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// Total returns the sum of non-void amounts.
func (s *LedgerStore) Total(ctx context.Context, participant domain.ParticipantID) (total decimal.Decimal, err error) {
	defer func(started time.Time) { observe("ledger_total", started, err) }(time.Now())

	var raw string
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount) FILTER (WHERE status <> 'VOID'), 0)::text
		FROM ledger_entries
		WHERE participant_id = $1
	`, string(participant)).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger entries: %w", err)
	}

	total, err = decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ledger total %q: %w", raw, err)
	}
	return total, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e                                   domain.LedgerEntry
		participant, amount, source, status string
	)
	if err := row.Scan(&e.EntryID, &participant, &e.Seq, &amount, &source, &status, &e.Remark, &e.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	e.Participant = domain.ParticipantID(participant)
	e.Amount = parsed
	e.Source = domain.EntrySource(source)
	e.Status = domain.EntryStatus(status)
	return &e, nil
}
