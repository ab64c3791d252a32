package relationships

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
)

// SendOutcome describes what a send did to the pair's state.
type SendOutcome string

const (
	// SendCreated means a new pending request was stored.
	SendCreated SendOutcome = "created"
	// SendAlreadyPending means the same request was already outstanding; nothing changed.
	SendAlreadyPending SendOutcome = "already_pending"
	// SendAutoAccepted means the recipient had already asked, so the two became friends.
	SendAutoAccepted SendOutcome = "auto_accepted"
)

// SendResult reports the outcome of a send along with the affected record.
type SendResult struct {
	Outcome    SendOutcome
	Request    *models.FriendRequest
	Friendship *models.Friendship
}

// RequestManager creates, resolves and lists pending friend requests.
type RequestManager struct {
	friendships *FriendshipManager
}

// NewRequestManager constructs a RequestManager that materializes accepted
// requests through friendships.
func NewRequestManager(friendships *FriendshipManager) *RequestManager {
	return &RequestManager{friendships: friendships}
}

// Send stores a request from -> to. A pending request in the opposite direction
// is accepted instead, so two requests between the same pair never coexist.
// Repeating a send is a no-op reported as SendAlreadyPending.
func (m *RequestManager) Send(ctx context.Context, q db.Querier, from, to string) (SendResult, error) {
	reverse, err := m.Exists(ctx, q, to, from)
	if err != nil {
		return SendResult{}, err
	}
	if reverse {
		friendship, err := m.Accept(ctx, q, to, from)
		if err != nil {
			return SendResult{}, err
		}
		return SendResult{Outcome: SendAutoAccepted, Friendship: &friendship}, nil
	}

	row := q.QueryRow(ctx, `
        INSERT INTO friend_requests (from_id, to_id)
        VALUES ($1, $2)
        ON CONFLICT (from_id, to_id) DO NOTHING
        RETURNING id, from_id, to_id, created_at
    `, from, to)

	request, err := scanRequest(row)
	switch {
	case err == nil:
		return SendResult{Outcome: SendCreated, Request: &request}, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := m.get(ctx, q, from, to)
		if err != nil {
			return SendResult{}, err
		}
		return SendResult{Outcome: SendAlreadyPending, Request: &existing}, nil
	default:
		return SendResult{}, fmt.Errorf("insert friend request: %w", err)
	}
}

// Accept consumes the request from -> to and creates the friendship in the same
// transaction. A missing request yields ErrNotFound and changes nothing.
func (m *RequestManager) Accept(ctx context.Context, q db.Querier, from, to string) (models.Friendship, error) {
	tag, err := q.Exec(ctx, `
        DELETE FROM friend_requests
        WHERE from_id = $1 AND to_id = $2
    `, from, to)
	if err != nil {
		return models.Friendship{}, fmt.Errorf("delete accepted friend request: %w", err)
	}

	if tag.RowsAffected() != 1 {
		return models.Friendship{}, fmt.Errorf("%w: no friend request from %s to %s", ErrNotFound, from, to)
	}

	return m.friendships.Create(ctx, q, from, to)
}

// Delete removes the request from -> to and reports whether one existed.
// Rejecting (by the recipient) and withdrawing (by the sender) both land here.
func (m *RequestManager) Delete(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	tag, err := q.Exec(ctx, `
        DELETE FROM friend_requests
        WHERE from_id = $1 AND to_id = $2
    `, from, to)
	if err != nil {
		return false, fmt.Errorf("delete friend request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Exists reports whether a request from -> to is pending.
func (m *RequestManager) Exists(ctx context.Context, q db.Querier, from, to string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friend_requests WHERE from_id = $1 AND to_id = $2)
    `, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friend request: %w", err)
	}
	return exists, nil
}

// ListIncoming returns the requests addressed to userID, oldest first.
func (m *RequestManager) ListIncoming(ctx context.Context, q db.Querier, userID string) ([]models.FriendRequest, error) {
	rows, err := q.Query(ctx, `
        SELECT id, from_id, to_id, created_at
        FROM friend_requests
        WHERE to_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query incoming friend requests: %w", err)
	}
	return collectRequests(rows)
}

// ListOutgoing returns the requests sent by userID, oldest first.
func (m *RequestManager) ListOutgoing(ctx context.Context, q db.Querier, userID string) ([]models.FriendRequest, error) {
	rows, err := q.Query(ctx, `
        SELECT id, from_id, to_id, created_at
        FROM friend_requests
        WHERE from_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query outgoing friend requests: %w", err)
	}
	return collectRequests(rows)
}

func (m *RequestManager) get(ctx context.Context, q db.Querier, from, to string) (models.FriendRequest, error) {
	request, err := scanRequest(q.QueryRow(ctx, `
        SELECT id, from_id, to_id, created_at
        FROM friend_requests
        WHERE from_id = $1 AND to_id = $2
    `, from, to))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, fmt.Errorf("%w: no friend request from %s to %s", ErrNotFound, from, to)
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request: %w", err)
	}
	return request, nil
}

func scanRequest(row pgx.Row) (models.FriendRequest, error) {
	var request models.FriendRequest
	if err := row.Scan(&request.ID, &request.FromID, &request.ToID, &request.CreatedAt); err != nil {
		return models.FriendRequest{}, err
	}
	request.CreatedAt = request.CreatedAt.UTC()
	return request, nil
}

func collectRequests(rows pgx.Rows) ([]models.FriendRequest, error) {
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}
	return requests, nil
}

var _ RequestStore = (*RequestManager)(nil)
