package domain

import "github.com/shopspring/decimal"

// EntryStatus is the lifecycle status of a ledger entry.
type EntryStatus string

const (
	EntryActive EntryStatus = "ACTIVE"
	EntryVoid   EntryStatus = "VOID"
)

// IsValid checks if the status is a valid value.
func (s EntryStatus) IsValid() bool {
	return s == EntryActive || s == EntryVoid
}

// LedgerEntry is one signed point-value movement for a participant.
// Corresponds to ledger_entries table in PostgreSQL. Entries are never mutated.
type LedgerEntry struct {
	EntryID     string          // PRIMARY KEY, uuid
	Participant ParticipantID   // owner
	Seq         int64           // insertion sequence, assigned by the store
	Amount      decimal.Decimal // signed; debits are negative
	Source      EntrySource     // ADMIN_CREDIT | ADMIN_DEBIT | SYSTEM
	Status      EntryStatus     // ACTIVE | VOID
	Remark      string          // free text
	CreatedAt   int64           // Unix timestamp in milliseconds
}

// Counts reports whether the entry contributes to the participant's total.
func (e *LedgerEntry) Counts() bool {
	return e.Status != EntryVoid
}

// SumEntries returns the sum of amounts over entries that are not void.
func SumEntries(entries []*LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Counts() {
			total = total.Add(e.Amount)
		}
	}
	return total
}
