package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// ledgerAccount holds one participant's entries and running total.
type ledgerAccount struct {
	mu      sync.RWMutex
	entries []*domain.LedgerEntry
	total   decimal.Decimal
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
// Each participant has its own account lock.
type LedgerStore struct {
	accounts sync.Map // domain.ParticipantID -> *ledgerAccount
	ids      sync.Map // entry_id -> struct{}
	seq      atomic.Int64
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

func (s *LedgerStore) account(participant domain.ParticipantID) *ledgerAccount {
	v, _ := s.accounts.LoadOrStore(participant, &ledgerAccount{total: decimal.Zero})
	return v.(*ledgerAccount)
}

// Append adds a new entry and assigns its Seq.
func (s *LedgerStore) Append(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.EntryID == "" || e.Participant.IsZero() || !e.Source.IsValid() || !e.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	if _, loaded := s.ids.LoadOrStore(e.EntryID, struct{}{}); loaded {
		return storage.ErrDuplicateKey
	}

	acc := s.account(e.Participant)
	acc.mu.Lock()
	defer acc.mu.Unlock()

	e.Seq = s.seq.Add(1)

	// Store a copy to prevent external mutation
	entryCopy := *e
	acc.entries = append(acc.entries, &entryCopy)
	if entryCopy.Counts() {
		acc.total = acc.total.Add(entryCopy.Amount)
	}
	return nil
}

// GetByParticipant retrieves all entries for a participant, newest first.
func (s *LedgerStore) GetByParticipant(_ context.Context, participant domain.ParticipantID) ([]*domain.LedgerEntry, error) {
	v, ok := s.accounts.Load(participant)
	if !ok {
		return nil, nil
	}
	acc := v.(*ledgerAccount)

	acc.mu.RLock()
	result := make([]*domain.LedgerEntry, 0, len(acc.entries))
	for _, e := range acc.entries {
		entryCopy := *e
		result = append(result, &entryCopy)
	}
	acc.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].Seq > result[j].Seq
	})

	return result, nil
}

// Total returns the sum of non-void amounts.
func (s *LedgerStore) Total(_ context.Context, participant domain.ParticipantID) (decimal.Decimal, error) {
	v, ok := s.accounts.Load(participant)
	if !ok {
		return decimal.Zero, nil
	}
	acc := v.(*ledgerAccount)

	acc.mu.RLock()
	defer acc.mu.RUnlock()
	return acc.total, nil
}

// Verify interface compliance at compile time.
var _ storage.LedgerStore = (*LedgerStore)(nil)
