package memory

import (
	"context"
	"sync"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// treeRecord guards one node. Only Left/Right change after creation.
type treeRecord struct {
	mu   sync.Mutex
	node domain.TreeNode
}

func (r *treeRecord) snapshot() *domain.TreeNode {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.node
	return &n
}

// TreeStore is an in-memory implementation of storage.TreeStore.
// Placement locks only the parent record; unrelated subtrees never contend.
type TreeStore struct {
	nodes  sync.Map // domain.ParticipantID -> *treeRecord
	rootMu sync.Mutex
	root   *treeRecord
}

// NewTreeStore creates a new in-memory tree store.
func NewTreeStore() *TreeStore {
	return &TreeStore{}
}

// InsertRoot creates the root node.
func (s *TreeStore) InsertRoot(_ context.Context, participant domain.ParticipantID, createdAt int64) (*domain.TreeNode, error) {
	if participant.IsZero() {
		return nil, storage.ErrInvalidInput
	}

	s.rootMu.Lock()
	defer s.rootMu.Unlock()

	if s.root != nil {
		return nil, storage.ErrRootExists
	}

	rec := &treeRecord{node: domain.TreeNode{
		Participant: participant,
		Depth:       0,
		CreatedAt:   createdAt,
	}}
	if _, loaded := s.nodes.LoadOrStore(participant, rec); loaded {
		return nil, storage.ErrAlreadyPlaced
	}
	s.root = rec

	n := rec.node
	return &n, nil
}

// Place creates child under parent at pos.
func (s *TreeStore) Place(_ context.Context, parent, child domain.ParticipantID, pos domain.Position, createdAt int64) (*domain.TreeNode, error) {
	if parent.IsZero() || child.IsZero() || !pos.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	v, ok := s.nodes.Load(parent)
	if !ok {
		return nil, storage.ErrNotFound
	}
	parentRec := v.(*treeRecord)

	parentRec.mu.Lock()
	defer parentRec.mu.Unlock()

	// The parent exists, so a self placement names a placed child.
	if parent == child {
		return nil, storage.ErrAlreadyPlaced
	}

	if parentRec.node.Child(pos) != "" {
		return nil, storage.ErrSlotOccupied
	}

	rec := &treeRecord{node: domain.TreeNode{
		Participant: child,
		Parent:      parent,
		Position:    pos,
		Depth:       parentRec.node.Depth + 1,
		CreatedAt:   createdAt,
	}}
	if _, loaded := s.nodes.LoadOrStore(child, rec); loaded {
		return nil, storage.ErrAlreadyPlaced
	}

	if pos == domain.PositionLeft {
		parentRec.node.Left = child
	} else {
		parentRec.node.Right = child
	}

	n := rec.node
	return &n, nil
}

// GetByParticipant retrieves a node. Returns ErrNotFound if not exists.
func (s *TreeStore) GetByParticipant(_ context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	v, ok := s.nodes.Load(participant)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v.(*treeRecord).snapshot(), nil
}

// GetMany retrieves the nodes that exist among ids.
func (s *TreeStore) GetMany(_ context.Context, ids []domain.ParticipantID) (map[domain.ParticipantID]*domain.TreeNode, error) {
	result := make(map[domain.ParticipantID]*domain.TreeNode, len(ids))
	for _, id := range ids {
		if v, ok := s.nodes.Load(id); ok {
			result[id] = v.(*treeRecord).snapshot()
		}
	}
	return result, nil
}

// GetRoot retrieves the root node. Returns ErrNotFound if the tree is empty.
func (s *TreeStore) GetRoot(_ context.Context) (*domain.TreeNode, error) {
	s.rootMu.Lock()
	rec := s.root
	s.rootMu.Unlock()

	if rec == nil {
		return nil, storage.ErrNotFound
	}
	return rec.snapshot(), nil
}

// Verify interface compliance at compile time.
var _ storage.TreeStore = (*TreeStore)(nil)
