package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
)

// TreeStore provides access to tree_nodes storage.
type TreeStore interface {
	// InsertRoot creates the root node. Returns ErrRootExists if a root exists,
	// ErrAlreadyPlaced if the participant already has a node.
	InsertRoot(ctx context.Context, participant domain.ParticipantID, createdAt int64) (*domain.TreeNode, error)

	// Place creates a child node under parent and fills the parent's slot in one
	// atomic step. Returns ErrNotFound if parent has no node, ErrSlotOccupied if
	// the slot is filled, ErrAlreadyPlaced if child already has a node.
	Place(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position, createdAt int64) (*domain.TreeNode, error)

	// GetByParticipant retrieves a node. Returns ErrNotFound if not exists.
	GetByParticipant(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error)

	// GetMany retrieves the nodes that exist among ids, keyed by participant.
	GetMany(ctx context.Context, ids []domain.ParticipantID) (map[domain.ParticipantID]*domain.TreeNode, error)

	// GetRoot retrieves the root node. Returns ErrNotFound if the tree is empty.
	GetRoot(ctx context.Context) (*domain.TreeNode, error)
}

// LedgerStore provides access to ledger_entries storage.
type LedgerStore interface {
	// Append adds a new entry and assigns its Seq. Returns ErrDuplicateKey if entry_id exists.
	Append(ctx context.Context, e *domain.LedgerEntry) error

	// GetByParticipant retrieves all entries for a participant, newest first
	// (created_at DESC, seq DESC).
	GetByParticipant(ctx context.Context, participant domain.ParticipantID) ([]*domain.LedgerEntry, error)

	// Total returns the sum of non-void amounts. Zero when there are no entries.
	Total(ctx context.Context, participant domain.ParticipantID) (decimal.Decimal, error)
}

// PairEventStore provides access to pair_events storage.
type PairEventStore interface {
	// Insert adds a new pending event and assigns its Seq. Returns ErrDuplicateKey if event_id exists.
	Insert(ctx context.Context, e *domain.PairEvent) error

	// GetByParticipant retrieves all events for a participant, ordered by created_at ASC, seq ASC.
	GetByParticipant(ctx context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error)

	// GetPending retrieves pending events created strictly before cutoff (ms),
	// ordered by created_at ASC, seq ASC.
	GetPending(ctx context.Context, participant domain.ParticipantID, cutoff int64) ([]*domain.PairEvent, error)

	// OldestPending returns the oldest pending event. Returns ErrNotFound if none.
	OldestPending(ctx context.Context, participant domain.ParticipantID) (*domain.PairEvent, error)

	// MarkMatched marks both events of every pair as matched, atomically.
	// Returns ErrPairConflict and changes nothing if any event is missing or
	// already matched.
	MarkMatched(ctx context.Context, pairs []domain.PairMatch) error

	// CountPairsBetween counts pairs whose window ended within [start, end) (ms).
	CountPairsBetween(ctx context.Context, start, end int64) (int, error)

	// ParticipantsWithPending lists participants that have at least one pending event.
	ParticipantsWithPending(ctx context.Context) ([]domain.ParticipantID, error)
}
