package pairing

import (
	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// Pairing errors. Each carries a stable reason string.
var (
	ErrParticipantNotFound = domain.NewError(domain.KindNotFound, "participant_not_found", "participant has no tree node")
	ErrWindowNotClosed     = domain.NewError(domain.KindPreconditionFailed, "window_not_closed", "session window has not closed yet")
	ErrInvalidLeg          = domain.NewError(domain.KindInvalidInput, "invalid_leg", "leg must be left or right")
	ErrInvalidTier         = domain.NewError(domain.KindInvalidInput, "invalid_tier", "package tier is empty")
	ErrEmptyLeg            = domain.NewError(domain.KindInvalidInput, "empty_leg", "participant has no child on that leg")

	ErrDuplicateEvent = storage.ErrDuplicateKey
)
