package domain

// ParticipantID is the opaque identity assigned to a participant at registration.
// IDs are never reused.
type ParticipantID string

// String returns the string representation of ParticipantID.
func (p ParticipantID) String() string {
	return string(p)
}

// IsZero reports whether the ID is empty.
func (p ParticipantID) IsZero() bool {
	return p == ""
}
