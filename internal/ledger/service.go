// Package ledger records point-value movements in an append-only log.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/observability"
	"pairnet/internal/storage"
)

// Ledger errors. Each carries a stable reason string.
var (
	ErrParticipantNotFound = domain.NewError(domain.KindNotFound, "account_not_found", "participant has no ledger account")
	ErrNonPositiveAmount   = domain.NewError(domain.KindInvalidInput, "non_positive_amount", "amount must be greater than zero")
	ErrInvalidSource       = domain.NewError(domain.KindInvalidInput, "invalid_source", "source is not allowed for this operation")
	ErrInvalidParticipant  = domain.NewError(domain.KindInvalidInput, "invalid_account", "participant id is empty")
)

// Directory tells the ledger which participants are known.
type Directory interface {
	Exists(ctx context.Context, participant domain.ParticipantID) (bool, error)
}

// Statement is a participant's total together with the entries it was summed from.
type Statement struct {
	Participant domain.ParticipantID
	Total       decimal.Decimal
	Entries     []*domain.LedgerEntry // newest first
}

// Service appends and aggregates ledger entries.
type Service struct {
	store     storage.LedgerStore
	directory Directory
	now       func() time.Time
	newID     func() string
}

// Options for creating Service.
type Options struct {
	Store     storage.LedgerStore
	Directory Directory        // nil accepts every non-empty participant
	Now       func() time.Time // defaults to time.Now
	NewID     func() string    // defaults to uuid.NewString
}

// New creates a new Service.
func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		directory: opts.Directory,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Append records amount as-is. The sign is the caller's choice.
func (s *Service) Append(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, source domain.EntrySource, remark string) (*domain.LedgerEntry, error) {
	if participant.IsZero() {
		return nil, ErrInvalidParticipant
	}
	if !source.IsValid() {
		return nil, ErrInvalidSource
	}
	if err := s.checkKnown(ctx, participant); err != nil {
		return nil, err
	}

	e := &domain.LedgerEntry{
		EntryID:     s.newID(),
		Participant: participant,
		Amount:      amount,
		Source:      source,
		Status:      domain.EntryActive,
		Remark:      remark,
		CreatedAt:   s.now().UnixMilli(),
	}
	if err := s.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("append ledger entry for %s: %w", participant, err)
	}

	observability.RecordLedgerAppend(string(source))
	return e, nil
}

// Credit appends a positive amount. Source must be ADMIN_CREDIT or SYSTEM.
func (s *Service) Credit(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, source domain.EntrySource, remark string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	if source == domain.SourceAdminDebit {
		return nil, ErrInvalidSource
	}
	return s.Append(ctx, participant, amount, source, remark)
}

// Debit appends the negated magnitude as an ADMIN_DEBIT entry.
func (s *Service) Debit(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, remark string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrNonPositiveAmount
	}
	return s.Append(ctx, participant, amount.Neg(), domain.SourceAdminDebit, remark)
}

// History returns all entries, newest first.
func (s *Service) History(ctx context.Context, participant domain.ParticipantID) ([]*domain.LedgerEntry, error) {
	entries, err := s.store.GetByParticipant(ctx, participant)
	if err != nil {
		return nil, fmt.Errorf("ledger history for %s: %w", participant, err)
	}
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}
	return entries, nil
}

// Total returns the sum of non-void amounts; zero for no entries.
func (s *Service) Total(ctx context.Context, participant domain.ParticipantID) (decimal.Decimal, error) {
	total, err := s.store.Total(ctx, participant)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger total for %s: %w", participant, err)
	}
	return total, nil
}

// Statement returns the total and the history it was computed from, so the
// two always agree even while appends are in flight.
func (s *Service) Statement(ctx context.Context, participant domain.ParticipantID) (*Statement, error) {
	entries, err := s.History(ctx, participant)
	if err != nil {
		return nil, err
	}
	return &Statement{
		Participant: participant,
		Total:       domain.SumEntries(entries),
		Entries:     entries,
	}, nil
}

func (s *Service) checkKnown(ctx context.Context, participant domain.ParticipantID) error {
	if s.directory == nil {
		return nil
	}
	ok, err := s.directory.Exists(ctx, participant)
	if err != nil {
		return fmt.Errorf("resolve participant %s: %w", participant, err)
	}
	if !ok {
		return fmt.Errorf("ledger %s: %w", participant, ErrParticipantNotFound)
	}
	return nil
}
