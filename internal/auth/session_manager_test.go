package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T, accessTTL, refreshTTL time.Duration) (*Manager, *InMemorySessionStore) {
	t.Helper()
	tokens, err := NewTokenIssuer("test-secret", "commenter-test")
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	store := NewInMemorySessionStore()
	return NewManager(accessTTL, refreshTTL, store, tokens), store
}

func TestManagerIssueAndRefresh(t *testing.T) {
	manager, store := newTestManager(t, time.Minute, time.Hour)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}

	userID, err := manager.Authenticate(tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected subject user-1 got %q", userID)
	}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected new refresh token")
	}
	if store.Has(tokens.RefreshToken) {
		t.Fatal("old token should have been removed")
	}
	if !store.Has(refreshed.RefreshToken) {
		t.Fatal("new token should have been stored")
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute, time.Hour)
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	manager, _ := newTestManager(t, time.Minute, time.Hour)
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	if _, err := manager.Refresh(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected refresh expired got %v", err)
	}

	tokens, err = manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	manager.Revoke(context.Background(), tokens.RefreshToken)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}

func TestManagerRevokeAll(t *testing.T) {
	manager, store := newTestManager(t, time.Minute, time.Hour)
	ctx := context.Background()

	first, err := manager.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := manager.Issue(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other, err := manager.Issue(ctx, "user-2")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	removed, err := manager.RevokeAll(ctx, "user-1")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 sessions removed got %d", removed)
	}
	if store.Has(first.RefreshToken) || store.Has(second.RefreshToken) {
		t.Fatal("expected user-1 sessions to be revoked")
	}
	if !store.Has(other.RefreshToken) {
		t.Fatal("expected user-2 session to survive")
	}
}

func TestTokenIssuerRejectsTampering(t *testing.T) {
	issuer, err := NewTokenIssuer("secret-a", "commenter")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	other, err := NewTokenIssuer("secret-b", "commenter")
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	now := time.Now().UTC()
	token, err := issuer.Sign("user-1", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid token for wrong secret got %v", err)
	}

	expired, err := issuer.Sign("user-1", now.Add(-time.Hour), now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.Parse(expired); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid token for expired token got %v", err)
	}

	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected invalid token for garbage got %v", err)
	}

	if _, err := NewTokenIssuer("", "commenter"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
