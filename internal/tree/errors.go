package tree

import (
	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// Tree errors. Each carries a stable reason string.
var (
	ErrNodeNotFound       = domain.NewError(domain.KindNotFound, "node_not_found", "participant has no tree node")
	ErrParentNotFound     = domain.NewError(domain.KindNotFound, "parent_not_found", "parent not found")
	ErrRootNotFound       = domain.NewError(domain.KindNotFound, "root_not_found", "downline root not found")
	ErrInvalidPosition    = domain.NewError(domain.KindInvalidInput, "invalid_position", "position must be left or right")
	ErrInvalidParticipant = domain.NewError(domain.KindInvalidInput, "invalid_participant", "participant id is empty")
	ErrInvalidDepth       = domain.NewError(domain.KindInvalidInput, "invalid_depth", "depth must not be negative")

	ErrSlotOccupied  = storage.ErrSlotOccupied
	ErrAlreadyPlaced = storage.ErrAlreadyPlaced
	ErrRootExists    = storage.ErrRootExists
)
