//go:build integration

package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commenter/backend/internal/auth"
	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := db.Migrate(ctx, pool, "up"); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:          uuid.NewString(),
		DisplayName: "alice",
		Email:       "alice@example.com",
		Password:    "secret-hash",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := user
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate email, got %v", err)
	}

	fetched, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if fetched.ID != user.ID || fetched.DisplayName != "alice" || fetched.Password != user.Password {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	status := "reading"
	email := "updated@example.com"
	updated, err := repo.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Email: &email, Status: &status})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Email != email || updated.Status != status || updated.DisplayName != "alice" {
		t.Fatalf("expected only provided fields to change, got %+v", updated)
	}

	other := createTestUser(t, repo, "other@example.com")
	if _, err := repo.UpdateProfile(ctx, other.ID, models.ProfileUpdate{Email: &email}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}

	if _, err := repo.UpdateProfile(ctx, uuid.NewString(), models.ProfileUpdate{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}

	if _, err := repo.Get(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected malformed id to read as not found, got %v", err)
	}
}

func TestPostgresUserRepository_DisableAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "switch@example.com")

	exists, err := repo.Exists(ctx, user.ID)
	if err != nil || !exists {
		t.Fatalf("expected user to exist, got %v, %v", exists, err)
	}

	if err := repo.SetDisabled(ctx, user.ID, true); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	disabled, err := repo.IsDisabled(ctx, user.ID)
	if err != nil || !disabled {
		t.Fatalf("expected user to be disabled, got %v, %v", disabled, err)
	}

	if err := repo.SetDisabled(ctx, uuid.NewString(), true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound disabling missing user, got %v", err)
	}

	sessions := NewPostgresSessionStore(testPool)
	if err := sessions.Save(ctx, auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	if err := repo.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if err := repo.Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if _, err := repo.IsDisabled(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted user, got %v", err)
	}

	removed, err := sessions.DeleteForUser(ctx, user.ID)
	if err != nil || removed != 0 {
		t.Fatalf("expected sessions to cascade with the account, got %d, %v", removed, err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, userRepo, "owner@example.com")

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}

	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires.UTC(), time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	orphan := auth.Session{RefreshToken: uuid.NewString(), UserID: uuid.NewString(), ExpiresAt: expires}
	if err := store.Save(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound saving session for missing user, got %v", err)
	}

	second := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: expires}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save second session: %v", err)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}

	removed, err := store.DeleteForUser(ctx, user.ID)
	if err != nil || removed != 1 {
		t.Fatalf("expected one remaining session to be revoked, got %d, %v", removed, err)
	}
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE friendship_members, friendships, friend_requests, blocks, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, email string) models.User {
	t.Helper()
	user := models.User{
		ID:          uuid.NewString(),
		DisplayName: "tester",
		Email:       email,
		Password:    "password-hash",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
