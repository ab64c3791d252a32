package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/commenter/backend/internal/logging"
	"github.com/commenter/backend/internal/middleware"
	"github.com/commenter/backend/internal/models"
	"github.com/commenter/backend/internal/relationships"
)

// FriendHandler provides the friend request, friendship and block endpoints.
// Every route acts on behalf of the authenticated caller; the path or body
// names the other account.
type FriendHandler struct {
	Relationships RelationshipService
}

type sendRequestBody struct {
	To string `json:"to"`
}

type sendResponse struct {
	Outcome    relationships.SendOutcome `json:"outcome"`
	Request    *models.FriendRequest     `json:"request,omitempty"`
	Friendship *models.Friendship        `json:"friendship,omitempty"`
}

type pendingRequest struct {
	models.FriendRequest
	Account models.User `json:"account"`
}

// Send handles POST /api/v1/friends/requests.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logging.FromContext(ctx).Warn("invalid friend request payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	to, ok := parseAccountID(w, r, body.To)
	if !ok {
		return
	}

	result, err := h.Relationships.SendRequest(ctx, uid, uid, to)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == relationships.SendCreated {
		status = http.StatusCreated
	}
	respondJSON(ctx, w, status, sendResponse{Outcome: result.Outcome, Request: result.Request, Friendship: result.Friendship})
}

// Accept handles POST /api/v1/friends/requests/{id}/accept where id is the sender.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, from, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	friendship, err := h.Relationships.AcceptRequest(ctx, uid, from, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]models.Friendship{"friendship": friendship})
}

// Reject handles POST /api/v1/friends/requests/{id}/reject where id is the sender.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, from, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	removed, err := h.Relationships.RejectRequest(ctx, uid, from, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	if !removed {
		respondError(ctx, w, http.StatusNotFound, "no pending friend request from this account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Withdraw handles DELETE /api/v1/friends/requests/{id} where id is the recipient.
// Withdrawing a request that no longer exists succeeds.
func (h FriendHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, to, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	if _, err := h.Relationships.WithdrawRequest(ctx, uid, uid, to); err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dissolve handles DELETE /api/v1/friends/{id}.
func (h FriendHandler) Dissolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, other, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	if err := h.Relationships.DissolveFriendship(ctx, uid, uid, other); err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Block handles PUT /api/v1/blocks/{id}.
func (h FriendHandler) Block(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, target, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	created, err := h.Relationships.Block(ctx, uid, uid, target)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"changed": created})
}

// Unblock handles DELETE /api/v1/blocks/{id}.
func (h FriendHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, target, ok := h.callerAndTarget(w, r)
	if !ok {
		return
	}

	removed, err := h.Relationships.Unblock(ctx, uid, uid, target)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]bool{"changed": removed})
}

// ListFriends handles GET /api/v1/friends.
func (h FriendHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}

	friends, err := h.Relationships.ListFriends(ctx, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]models.User{"friends": nonNil(friends)})
}

// ListBlocked handles GET /api/v1/blocks.
func (h FriendHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}

	blocked, err := h.Relationships.ListBlocked(ctx, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]models.User{"blocked": nonNil(blocked)})
}

// ListIncoming handles GET /api/v1/friends/requests/incoming.
func (h FriendHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}

	requests, err := h.Relationships.ListIncoming(ctx, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]pendingRequest{"requests": toPending(requests)})
}

// ListOutgoing handles GET /api/v1/friends/requests/outgoing.
func (h FriendHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.caller(w, r)
	if !ok {
		return
	}

	requests, err := h.Relationships.ListOutgoing(ctx, uid)
	if err != nil {
		respondRelationshipError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string][]pendingRequest{"requests": toPending(requests)})
}

func (h FriendHandler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	if h.Relationships == nil {
		logging.FromContext(ctx).Error("relationship service unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "relationship services unavailable")
		return "", false
	}
	uid := middleware.UserIDFromContext(ctx)
	if uid == "" {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return uid, true
}

func (h FriendHandler) callerAndTarget(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	uid, ok := h.caller(w, r)
	if !ok {
		return "", "", false
	}
	target, ok := parseAccountID(w, r, r.PathValue("id"))
	if !ok {
		return "", "", false
	}
	return uid, target, true
}

// parseAccountID validates an account id taken from the request and returns it in
// canonical form.
func parseAccountID(w http.ResponseWriter, r *http.Request, raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		respondError(r.Context(), w, http.StatusBadRequest, "invalid account id")
		return "", false
	}
	return id.String(), true
}

func toPending(requests []relationships.RequestWithAccount) []pendingRequest {
	out := make([]pendingRequest, 0, len(requests))
	for _, request := range requests {
		out = append(out, pendingRequest{FriendRequest: request.Request, Account: request.Account})
	}
	return out
}

func nonNil(users []models.User) []models.User {
	if users == nil {
		return []models.User{}
	}
	return users
}
