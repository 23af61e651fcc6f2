package storage

import "pairnet/internal/domain"

// Storage errors. All are *domain.Error so calling layers can resolve their kind.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = domain.NewError(domain.KindNotFound, "not_found", "not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = domain.NewError(domain.KindConflict, "duplicate_key",
		"duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = domain.NewError(domain.KindInvalidInput, "invalid_input", "invalid input")

	// ErrSlotOccupied is returned when a parent's child slot is already filled.
	ErrSlotOccupied = domain.NewError(domain.KindConflict, "slot_occupied", "slot already filled")

	// ErrAlreadyPlaced is returned when a participant already has a node.
	ErrAlreadyPlaced = domain.NewError(domain.KindConflict, "already_placed",
		"participant already placed in the tree")

	// ErrRootExists is returned when a second root is inserted.
	ErrRootExists = domain.NewError(domain.KindConflict, "root_exists", "tree already has a root")

	// ErrPairConflict is returned when a pair references an event that is
	// missing or no longer pending. No event of the batch is marked.
	ErrPairConflict = domain.NewError(domain.KindConflict, "pair_conflict",
		"pair references an event that is not pending")
)
