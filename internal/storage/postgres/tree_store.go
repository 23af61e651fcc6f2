package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pairnet/internal/domain"
	"pairnet/internal/storage"
)

// TreeStore implements storage.TreeStore using PostgreSQL.
// Place locks only the parent row, so unrelated subtrees never contend.
type TreeStore struct {
	pool *Pool
}

// NewTreeStore creates a new TreeStore.
func NewTreeStore(pool *Pool) *TreeStore {
	return &TreeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TreeStore = (*TreeStore)(nil)

const treeNodeColumns = `participant_id, parent_id, left_id, right_id, position, depth, created_at`

// InsertRoot creates the root node.
func (s *TreeStore) InsertRoot(ctx context.Context, participant domain.ParticipantID, createdAt int64) (node *domain.TreeNode, err error) {
	defer func(started time.Time) { observe("tree_insert_root", started, err) }(time.Now())

	if participant.IsZero() {
		return nil, storage.ErrInvalidInput
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tree_nodes (participant_id, parent_id, position, depth, created_at)
		VALUES ($1, NULL, '', 0, $2)
	`, string(participant), createdAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == constraintTreeSingleRoot {
				return nil, storage.ErrRootExists
			}
			return nil, storage.ErrAlreadyPlaced
		}
		return nil, fmt.Errorf("insert root node: %w", err)
	}

	return &domain.TreeNode{
		Participant: participant,
		Depth:       0,
		CreatedAt:   createdAt,
	}, nil
}

// Place creates child under parent at pos and fills the parent's slot in one
// transaction holding the parent row lock.
func (s *TreeStore) Place(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position, createdAt int64) (node *domain.TreeNode, err error) {
	defer func(started time.Time) { observe("tree_place", started, err) }(time.Now())

	if parent.IsZero() || child.IsZero() || !pos.IsValid() {
		return nil, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		parentDepth int
		left, right *string
	)
	err = tx.QueryRow(ctx, `
		SELECT depth, left_id, right_id
		FROM tree_nodes
		WHERE participant_id = $1
		FOR UPDATE
	`, string(parent)).Scan(&parentDepth, &left, &right)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock parent node: %w", err)
	}
	if parent == child {
		return nil, storage.ErrAlreadyPlaced
	}

	slot, column := left, "left_id"
	if pos == domain.PositionRight {
		slot, column = right, "right_id"
	}
	if slot != nil {
		return nil, storage.ErrSlotOccupied
	}

	placed := &domain.TreeNode{
		Participant: child,
		Parent:      parent,
		Position:    pos,
		Depth:       parentDepth + 1,
		CreatedAt:   createdAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tree_nodes (participant_id, parent_id, position, depth, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(child), string(parent), string(pos), placed.Depth, createdAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == constraintTreeSlotUnique {
				return nil, storage.ErrSlotOccupied
			}
			return nil, storage.ErrAlreadyPlaced
		}
		return nil, fmt.Errorf("insert child node: %w", err)
	}

	// column is one of two fixed names, never caller input.
	tag, err := tx.Exec(ctx,
		`UPDATE tree_nodes SET `+column+` = $2 WHERE participant_id = $1 AND `+column+` IS NULL`,
		string(parent), string(child))
	if err != nil {
		return nil, fmt.Errorf("fill parent slot: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, storage.ErrSlotOccupied
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return placed, nil
}

// GetByParticipant retrieves a node. Returns ErrNotFound if not exists.
func (s *TreeStore) GetByParticipant(ctx context.Context, participant domain.ParticipantID) (node *domain.TreeNode, err error) {
	defer func(started time.Time) { observe("tree_get", started, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+treeNodeColumns+` FROM tree_nodes WHERE participant_id = $1`,
		string(participant))
	node, err = scanTreeNode(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get tree node: %w", err)
	}
	return node, nil
}

// GetMany retrieves the nodes that exist among ids.
func (s *TreeStore) GetMany(ctx context.Context, ids []domain.ParticipantID) (result map[domain.ParticipantID]*domain.TreeNode, err error) {
	defer func(started time.Time) { observe("tree_get_many", started, err) }(time.Now())

	result = make(map[domain.ParticipantID]*domain.TreeNode, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+treeNodeColumns+` FROM tree_nodes WHERE participant_id = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("query tree nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := scanTreeNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tree node: %w", err)
		}
		result[node.Participant] = node
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree nodes: %w", err)
	}
	return result, nil
}

// GetRoot retrieves the root node. Returns ErrNotFound if the tree is empty.
func (s *TreeStore) GetRoot(ctx context.Context) (node *domain.TreeNode, err error) {
	defer func(started time.Time) { observe("tree_get_root", started, err) }(time.Now())

	row := s.pool.QueryRow(ctx, `SELECT `+treeNodeColumns+` FROM tree_nodes WHERE parent_id IS NULL`)
	node, err = scanTreeNode(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get root node: %w", err)
	}
	return node, nil
}

func scanTreeNode(row pgx.Row) (*domain.TreeNode, error) {
	var (
		n                   domain.TreeNode
		participant         string
		parent, left, right *string
		position            string
	)
	if err := row.Scan(&participant, &parent, &left, &right, &position, &n.Depth, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Participant = domain.ParticipantID(participant)
	n.Parent = optionalID(parent)
	n.Left = optionalID(left)
	n.Right = optionalID(right)
	n.Position = domain.Position(position)
	return &n, nil
}

func optionalID(s *string) domain.ParticipantID {
	if s == nil {
		return ""
	}
	return domain.ParticipantID(*s)
}
