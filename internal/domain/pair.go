package domain

// PackageTier identifies the package level an event belongs to.
// Pairs only form between events of the same tier.
type PackageTier string

// String returns the string representation of PackageTier.
func (t PackageTier) String() string {
	return string(t)
}

// PairEvent is a leg-side contribution waiting to be paired ("red")
// or already paired ("green"). Matched never reverts to false.
// Corresponds to pair_events table in PostgreSQL.
type PairEvent struct {
	EventID     string        // PRIMARY KEY, deterministic hash
	Participant ParticipantID // the participant whose legs are compared
	Leg         Position      // LEFT | RIGHT
	Tier        PackageTier   // package tier
	SourceRef   string        // caller reference that produced the event
	Seq         int64         // insertion sequence, assigned by the store
	CreatedAt   int64         // Unix timestamp in milliseconds

	// Classification
	Matched     bool   // true once paired
	PairID      string // shared by both events of a pair
	WindowIndex int    // session window that matched the event (1..8)
	WindowEnd   int64  // end of that window (ms)
}

// Before reports whether e is older than o in FIFO order:
// createdAt first, then insertion sequence.
func (e *PairEvent) Before(o *PairEvent) bool {
	if e.CreatedAt != o.CreatedAt {
		return e.CreatedAt < o.CreatedAt
	}
	return e.Seq < o.Seq
}

// PairMatch records one left event paired with one right event.
type PairMatch struct {
	PairID       string
	Participant  ParticipantID
	Tier         PackageTier
	LeftEventID  string
	RightEventID string
	WindowIndex  int
	WindowEnd    int64 // ms
}

// TierSummary counts a participant's events for one tier.
type TierSummary struct {
	Tier         PackageTier
	Matched      int // matched events, both legs
	Pending      int // pending events, both legs
	PendingLeft  int
	PendingRight int
	Pairs        int // Matched / 2
}

// Checkpoint is the last session window a participant was classified through.
type Checkpoint struct {
	Participant ParticipantID
	WindowIndex int
	WindowEnd   int64 // ms
	UpdatedAt   int64 // ms
}
