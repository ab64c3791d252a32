package handlers

import (
	"context"
	"io"

	"github.com/commenter/backend/internal/models"
	"github.com/commenter/backend/internal/relationships"
)

// UserStore captures the account operations required by the auth and profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Get(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// RelationshipService is the social graph as seen by the friend and block endpoints.
type RelationshipService interface {
	SendRequest(ctx context.Context, uid, from, to string) (relationships.SendResult, error)
	AcceptRequest(ctx context.Context, uid, from, to string) (models.Friendship, error)
	RejectRequest(ctx context.Context, uid, from, to string) (bool, error)
	WithdrawRequest(ctx context.Context, uid, from, to string) (bool, error)
	Block(ctx context.Context, uid, from, to string) (bool, error)
	Unblock(ctx context.Context, uid, from, to string) (bool, error)
	DissolveFriendship(ctx context.Context, uid, from, to string) error
	ListFriends(ctx context.Context, uid string) ([]models.User, error)
	ListIncoming(ctx context.Context, uid string) ([]relationships.RequestWithAccount, error)
	ListOutgoing(ctx context.Context, uid string) ([]relationships.RequestWithAccount, error)
	ListBlocked(ctx context.Context, uid string) ([]models.User, error)
}

// PictureStore persists profile pictures in object storage.
type PictureStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
