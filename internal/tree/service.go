// Package tree maintains the binary placement tree: fill-once child slots,
// depth bookkeeping, and breadth-first downline queries.
package tree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairnet/internal/domain"
	"pairnet/internal/observability"
	"pairnet/internal/storage"
)

// MaxAncestors bounds Ancestors walks against corrupted parent chains.
const MaxAncestors = 1 << 16

// Service answers tree lookups and performs placements.
type Service struct {
	store storage.TreeStore
	now   func() time.Time
}

// Options for creating Service.
type Options struct {
	Store storage.TreeStore
	Now   func() time.Time // defaults to time.Now
}

// New creates a new Service.
func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: opts.Store, now: now}
}

// Lookup returns the participant's node.
func (s *Service) Lookup(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	node, err := s.store.GetByParticipant(ctx, participant)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("lookup %s: %w", participant, ErrNodeNotFound)
		}
		return nil, fmt.Errorf("lookup %s: %w", participant, err)
	}
	return node, nil
}

// Exists reports whether the participant has a node.
func (s *Service) Exists(ctx context.Context, participant domain.ParticipantID) (bool, error) {
	_, err := s.store.GetByParticipant(ctx, participant)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PlaceRoot creates the first node of the tree.
func (s *Service) PlaceRoot(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	if participant.IsZero() {
		return nil, ErrInvalidParticipant
	}

	node, err := s.store.InsertRoot(ctx, participant, s.now().UnixMilli())
	if err != nil {
		observability.RecordPlacement(domain.ReasonOf(err))
		return nil, fmt.Errorf("place root %s: %w", participant, err)
	}

	observability.RecordPlacement("root")
	return node, nil
}

// Place puts child into parent's slot at pos. The slot fill is atomic: of two
// concurrent placements into one slot exactly one succeeds, the other gets
// ErrSlotOccupied.
func (s *Service) Place(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position) (*domain.TreeNode, error) {
	node, err := s.place(ctx, parent, child, pos)
	if err != nil {
		observability.RecordPlacement(domain.ReasonOf(err))
		return nil, err
	}
	observability.RecordPlacement("ok")
	return node, nil
}

func (s *Service) place(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position) (*domain.TreeNode, error) {
	if !pos.IsValid() {
		return nil, ErrInvalidPosition
	}
	if parent.IsZero() || child.IsZero() {
		return nil, ErrInvalidParticipant
	}

	node, err := s.store.Place(ctx, parent, child, pos, s.now().UnixMilli())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("place %s under %s: %w", child, parent, ErrParentNotFound)
		}
		return nil, fmt.Errorf("place %s under %s %s: %w", child, parent, pos, err)
	}
	return node, nil
}

// Downline returns everyone 1..maxDepth levels below root in breadth-first
// order: level by level, left before right, siblings in the order their
// parents were visited. maxDepth 0 yields an empty result.
func (s *Service) Downline(ctx context.Context, root domain.ParticipantID, maxDepth int) ([]domain.DownlineEntry, error) {
	if maxDepth < 0 {
		return nil, ErrInvalidDepth
	}

	rootNode, err := s.store.GetByParticipant(ctx, root)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("downline %s: %w", root, ErrRootNotFound)
		}
		return nil, fmt.Errorf("downline %s: %w", root, err)
	}
	observability.RecordDownlineQuery()

	result := []domain.DownlineEntry{}
	level := []*domain.TreeNode{rootNode}

	for depth := 1; depth <= maxDepth && len(level) > 0; depth++ {
		var ids []domain.ParticipantID
		for _, n := range level {
			for _, pos := range []domain.Position{domain.PositionLeft, domain.PositionRight} {
				if c := n.Child(pos); c != "" {
					ids = append(ids, c)
				}
			}
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			result = append(result, domain.DownlineEntry{Participant: id, Depth: depth})
		}
		if depth == maxDepth {
			break
		}

		nodes, err := s.store.GetMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("downline %s level %d: %w", root, depth, err)
		}
		level = level[:0]
		for _, id := range ids {
			if n, ok := nodes[id]; ok {
				level = append(level, n)
			}
		}
	}

	return result, nil
}

// Ancestors walks from participant up to the root. Each step names the leg of
// the ancestor that contains participant. The root has no ancestors.
func (s *Service) Ancestors(ctx context.Context, participant domain.ParticipantID) ([]domain.Ancestor, error) {
	node, err := s.Lookup(ctx, participant)
	if err != nil {
		return nil, err
	}

	var result []domain.Ancestor
	for distance := 1; !node.IsRoot(); distance++ {
		if distance > MaxAncestors {
			return nil, fmt.Errorf("ancestors of %s: parent chain exceeds %d", participant, MaxAncestors)
		}
		result = append(result, domain.Ancestor{
			Participant: node.Parent,
			Leg:         node.Position,
			Distance:    distance,
		})
		node, err = s.Lookup(ctx, node.Parent)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
