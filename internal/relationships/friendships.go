package relationships

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
)

// FriendshipManager owns the friendship groups and their two membership rows.
type FriendshipManager struct{}

// NewFriendshipManager constructs a FriendshipManager.
func NewFriendshipManager() *FriendshipManager {
	return &FriendshipManager{}
}

// Create allocates a friendship group for a and b and inserts both memberships.
// The group row holds the ordered pair under a unique constraint, so a second
// group for the same accounts is rejected with ErrConflict rather than written.
func (m *FriendshipManager) Create(ctx context.Context, q db.Querier, a, b string) (models.Friendship, error) {
	low, high, err := canonicalPair(a, b)
	if err != nil {
		return models.Friendship{}, err
	}
	if low == high {
		return models.Friendship{}, fmt.Errorf("%w: an account cannot befriend itself", ErrInvalidArgument)
	}

	friendship := models.Friendship{Members: [2]string{a, b}}
	err = q.QueryRow(ctx, `
        INSERT INTO friendships (user_low, user_high)
        VALUES ($1, $2)
        ON CONFLICT (user_low, user_high) DO NOTHING
        RETURNING id, created_at
    `, low, high).Scan(&friendship.ID, &friendship.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Friendship{}, fmt.Errorf("%w: %s and %s are already friends", ErrConflict, a, b)
		}
		return models.Friendship{}, fmt.Errorf("insert friendship: %w", err)
	}

	if _, err := q.Exec(ctx, `
        INSERT INTO friendship_members (friendship_id, user_id)
        VALUES ($1, $2), ($1, $3)
    `, friendship.ID, a, b); err != nil {
		if isUniqueViolation(err) {
			return models.Friendship{}, fmt.Errorf("%w: friendship %d already has members", ErrConflict, friendship.ID)
		}
		return models.Friendship{}, fmt.Errorf("insert friendship members: %w", err)
	}

	friendship.CreatedAt = friendship.CreatedAt.UTC()
	return friendship, nil
}

// AreFriends reports whether a and b share a friendship group.
func (m *FriendshipManager) AreFriends(ctx context.Context, q db.Querier, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}

	var friends bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1
            FROM friendship_members mine
            JOIN friendship_members theirs ON theirs.friendship_id = mine.friendship_id
            WHERE mine.user_id = $1 AND theirs.user_id = $2
        )
    `, a, b).Scan(&friends)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return friends, nil
}

// List returns the ids of every account sharing a friendship group with userID.
func (m *FriendshipManager) List(ctx context.Context, q db.Querier, userID string) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT DISTINCT theirs.user_id
        FROM friendship_members mine
        JOIN friendship_members theirs ON theirs.friendship_id = mine.friendship_id
        WHERE mine.user_id = $1 AND theirs.user_id <> $1
        ORDER BY 1
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	return collectIDs(rows)
}

// Dissolve removes the group shared by a and b along with both memberships.
// It reports false when the two are not friends. A group that does not hold
// exactly two memberships is surfaced as ErrCorruptFriendship so the enclosing
// transaction rolls back.
func (m *FriendshipManager) Dissolve(ctx context.Context, q db.Querier, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}

	var groupID int64
	err := q.QueryRow(ctx, `
        SELECT mine.friendship_id
        FROM friendship_members mine
        JOIN friendship_members theirs ON theirs.friendship_id = mine.friendship_id
        WHERE mine.user_id = $1 AND theirs.user_id = $2
        LIMIT 1
    `, a, b).Scan(&groupID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("locate friendship: %w", err)
	}

	members, err := q.Exec(ctx, `DELETE FROM friendship_members WHERE friendship_id = $1`, groupID)
	if err != nil {
		return false, fmt.Errorf("delete friendship members: %w", err)
	}

	groups, err := q.Exec(ctx, `DELETE FROM friendships WHERE id = $1`, groupID)
	if err != nil {
		return false, fmt.Errorf("delete friendship: %w", err)
	}

	if members.RowsAffected() != 2 || groups.RowsAffected() != 1 {
		return false, fmt.Errorf("%w: group %d removed %d memberships and %d groups",
			ErrCorruptFriendship, groupID, members.RowsAffected(), groups.RowsAffected())
	}

	return true, nil
}

var _ FriendshipStore = (*FriendshipManager)(nil)
