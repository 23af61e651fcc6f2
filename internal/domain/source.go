package domain

// EntrySource tags how a ledger entry was produced.
type EntrySource string

const (
	SourceAdminCredit EntrySource = "ADMIN_CREDIT"
	SourceAdminDebit  EntrySource = "ADMIN_DEBIT"
	SourceSystem      EntrySource = "SYSTEM"
)

// String returns the string representation of EntrySource.
func (s EntrySource) String() string {
	return string(s)
}

// IsValid checks if the source is a valid value.
func (s EntrySource) IsValid() bool {
	switch s {
	case SourceAdminCredit, SourceAdminDebit, SourceSystem:
		return true
	}
	return false
}
