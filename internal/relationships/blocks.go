package relationships

import (
	"context"
	"fmt"

	"github.com/commenter/backend/internal/db"
)

// BlockManager records blocks and clears whatever relationship the pair had.
type BlockManager struct {
	requests    *RequestManager
	friendships *FriendshipManager
}

// NewBlockManager constructs a BlockManager that evicts state through the given managers.
func NewBlockManager(requests *RequestManager, friendships *FriendshipManager) *BlockManager {
	return &BlockManager{requests: requests, friendships: friendships}
}

// Block removes pending requests in both directions, dissolves any friendship
// between from and to, then records the block. All four steps share q, so they
// commit or roll back together. It reports whether a new block row was written.
func (m *BlockManager) Block(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	if _, err := m.requests.Delete(ctx, q, from, to); err != nil {
		return false, err
	}
	if _, err := m.requests.Delete(ctx, q, to, from); err != nil {
		return false, err
	}
	if _, err := m.friendships.Dissolve(ctx, q, from, to); err != nil {
		return false, err
	}

	tag, err := q.Exec(ctx, `
        INSERT INTO blocks (block_from, block_to)
        VALUES ($1, $2)
        ON CONFLICT (block_from, block_to) DO NOTHING
    `, from, to)
	if err != nil {
		return false, fmt.Errorf("insert block: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unblock deletes the block from -> to. Removed requests and friendships stay gone.
func (m *BlockManager) Unblock(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	tag, err := q.Exec(ctx, `
        DELETE FROM blocks
        WHERE block_from = $1 AND block_to = $2
    `, from, to)
	if err != nil {
		return false, fmt.Errorf("delete block: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsBlocked reports whether from has blocked to.
func (m *BlockManager) IsBlocked(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	var blocked bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM blocks WHERE block_from = $1 AND block_to = $2)
    `, from, to).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}

// ListBlockedBy returns the ids blocked by from, oldest block first.
func (m *BlockManager) ListBlockedBy(ctx context.Context, q db.Querier, from string) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT block_to
        FROM blocks
        WHERE block_from = $1
        ORDER BY created_at, block_to
    `, from)
	if err != nil {
		return nil, fmt.Errorf("query blocked accounts: %w", err)
	}
	return collectIDs(rows)
}

var _ BlockStore = (*BlockManager)(nil)
