package handlers

import (
	"net/http"

	"github.com/commenter/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	DB              Pinger
	Users           UserStore
	Sessions        SessionManager
	Authenticator   middleware.Authenticator
	AuthLimiter     middleware.RateLimiter
	Relationships   RelationshipService
	Pictures        PictureStore
	MaxPictureBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{DB: deps.DB}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	profile := ProfileHandler{Users: deps.Users, Pictures: deps.Pictures, MaxPictureBytes: deps.MaxPictureBytes}
	friends := FriendHandler{Relationships: deps.Relationships}

	limited := middleware.Limit(deps.AuthLimiter, "auth")
	authed := middleware.RequireAuth(deps.Authenticator)
	handle := func(pattern string, mw func(http.Handler) http.Handler, fn http.HandlerFunc) {
		mux.Handle(pattern, mw(fn))
	}

	mux.HandleFunc("GET /healthz", health.Handle)

	handle("POST /api/v1/auth/signup", limited, auth.SignUp)
	handle("POST /api/v1/auth/login", limited, auth.Login)
	handle("POST /api/v1/auth/refresh", limited, auth.Refresh)
	handle("POST /api/v1/auth/logout", limited, auth.Logout)
	handle("GET /api/v1/auth/me", authed, auth.Me)

	handle("GET /api/v1/profile", authed, profile.Get)
	handle("POST /api/v1/profile", authed, profile.Update)

	handle("GET /api/v1/friends", authed, friends.ListFriends)
	handle("DELETE /api/v1/friends/{id}", authed, friends.Dissolve)
	handle("GET /api/v1/friends/requests/incoming", authed, friends.ListIncoming)
	handle("GET /api/v1/friends/requests/outgoing", authed, friends.ListOutgoing)
	handle("POST /api/v1/friends/requests", authed, friends.Send)
	handle("DELETE /api/v1/friends/requests/{id}", authed, friends.Withdraw)
	handle("POST /api/v1/friends/requests/{id}/accept", authed, friends.Accept)
	handle("POST /api/v1/friends/requests/{id}/reject", authed, friends.Reject)

	handle("GET /api/v1/blocks", authed, friends.ListBlocked)
	handle("PUT /api/v1/blocks/{id}", authed, friends.Block)
	handle("DELETE /api/v1/blocks/{id}", authed, friends.Unblock)
}
