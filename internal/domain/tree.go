package domain

import "strings"

// Position is the slot a node occupies under its parent.
type Position string

const (
	PositionNone  Position = ""
	PositionLeft  Position = "LEFT"
	PositionRight Position = "RIGHT"
)

// String returns the string representation of Position.
func (p Position) String() string {
	return string(p)
}

// IsValid reports whether p names a child slot.
func (p Position) IsValid() bool {
	return p == PositionLeft || p == PositionRight
}

// ParsePosition accepts "left"/"right" in any case.
func ParsePosition(s string) (Position, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LEFT", "L":
		return PositionLeft, true
	case "RIGHT", "R":
		return PositionRight, true
	}
	return PositionNone, false
}

// TreeNode is one participant's placement in the binary tree.
// Corresponds to tree_nodes table in PostgreSQL.
type TreeNode struct {
	Participant ParticipantID // PRIMARY KEY
	Parent      ParticipantID // empty only for the root
	Left        ParticipantID // empty when the slot is unfilled
	Right       ParticipantID // empty when the slot is unfilled
	Position    Position      // PositionNone only for the root
	Depth       int           // 0 for root, parent.Depth+1 otherwise
	CreatedAt   int64         // Unix timestamp in milliseconds
}

// IsRoot reports whether the node has no parent.
func (n *TreeNode) IsRoot() bool {
	return n.Parent == ""
}

// Child returns the participant in the given slot, or empty.
func (n *TreeNode) Child(pos Position) ParticipantID {
	switch pos {
	case PositionLeft:
		return n.Left
	case PositionRight:
		return n.Right
	}
	return ""
}

// DownlineEntry is one participant found by a downline query.
type DownlineEntry struct {
	Participant ParticipantID
	Depth       int // relative to the queried root, starting at 1
}

// Ancestor is one step on the path from a node to the root.
type Ancestor struct {
	Participant ParticipantID // the ancestor
	Leg         Position      // which of the ancestor's legs contains the start node
	Distance    int           // 1 for the parent
}
