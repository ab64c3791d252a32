package app

import (
	"context"
	"fmt"
	"time"

	"github.com/commenter/backend/internal/auth"
	"github.com/commenter/backend/internal/config"
	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/handlers"
	"github.com/commenter/backend/internal/middleware"
	"github.com/commenter/backend/internal/relationships"
	"github.com/commenter/backend/internal/repositories"
	"github.com/commenter/backend/internal/storage"
)

const rateLimiterTTL = 10 * time.Minute

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// Picture uploads stay disabled when no bucket is configured.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenIssuer)
	if err != nil {
		return handlers.Dependencies{}, err
	}

	users := repositories.NewPostgresUserRepository(pool)
	sessions := auth.NewManager(cfg.AccessTTL, cfg.RefreshTTL, repositories.NewPostgresSessionStore(pool), tokens)

	deps := handlers.Dependencies{
		Users:           users,
		Sessions:        sessions,
		Authenticator:   sessions,
		AuthLimiter:     middleware.NewIPRateLimiter(cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window, cfg.AuthRateLimit.Burst, rateLimiterTTL),
		Relationships:   relationships.NewPostgresService(pool, users),
		MaxPictureBytes: cfg.MaxPictureBytes,
	}

	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.DB = pinger
	}

	if cfg.ObjectStore.Enabled() {
		pictures, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, fmt.Errorf("configure picture storage: %w", err)
		}
		deps.Pictures = pictures
	}

	return deps, nil
}
