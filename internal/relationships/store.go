package relationships

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
)

// RequestStore is the friend request half of the relationship store.
type RequestStore interface {
	Send(ctx context.Context, q db.Querier, from, to string) (SendResult, error)
	Accept(ctx context.Context, q db.Querier, from, to string) (models.Friendship, error)
	Delete(ctx context.Context, q db.Querier, from, to string) (bool, error)
	ListIncoming(ctx context.Context, q db.Querier, userID string) ([]models.FriendRequest, error)
	ListOutgoing(ctx context.Context, q db.Querier, userID string) ([]models.FriendRequest, error)
}

// FriendshipStore answers and mutates symmetric friendships.
type FriendshipStore interface {
	AreFriends(ctx context.Context, q db.Querier, a, b string) (bool, error)
	List(ctx context.Context, q db.Querier, userID string) ([]string, error)
	Dissolve(ctx context.Context, q db.Querier, a, b string) (bool, error)
}

// BlockStore records directional blocks.
type BlockStore interface {
	Block(ctx context.Context, q db.Querier, from, to string) (bool, error)
	Unblock(ctx context.Context, q db.Querier, from, to string) (bool, error)
	IsBlocked(ctx context.Context, q db.Querier, from, to string) (bool, error)
	ListBlockedBy(ctx context.Context, q db.Querier, from string) ([]string, error)
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// canonicalPair orders two account ids the way the friendships table stores them.
func canonicalPair(a, b string) (string, string, error) {
	ua, err := uuid.Parse(a)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed account id %q", ErrInvalidArgument, a)
	}
	ub, err := uuid.Parse(b)
	if err != nil {
		return "", "", fmt.Errorf("%w: malformed account id %q", ErrInvalidArgument, b)
	}
	low, high := ua.String(), ub.String()
	if low > high {
		low, high = high, low
	}
	return low, high, nil
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account ids: %w", err)
	}
	return ids, nil
}
