package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/commenter/backend/internal/config"
	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/repositories"
	"github.com/commenter/backend/internal/storage"
)

// accountAdmin is the slice of the account repository used by the account command.
type accountAdmin interface {
	SetDisabled(ctx context.Context, id string, disabled bool) error
	Delete(ctx context.Context, id string) error
}

type sessionRevoker interface {
	DeleteForUser(ctx context.Context, userID string) (int64, error)
}

type prefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

func runAccount(ctx context.Context, cfg config.Config, args []string) error {
	if len(args) != 2 {
		return errors.New("expected: account <disable|enable|delete> <id>")
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var pictures prefixDeleter
	if cfg.ObjectStore.Enabled() {
		s3, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("configure picture storage: %w", err)
		}
		pictures = s3
	}

	return administerAccount(ctx, args[0], args[1],
		repositories.NewPostgresUserRepository(pool),
		repositories.NewPostgresSessionStore(pool),
		pictures,
	)
}

// administerAccount applies an account command. Disabling also revokes every
// refresh token so the account cannot mint new access tokens; deleting removes
// stored pictures once the account row is gone.
func administerAccount(ctx context.Context, action, rawID string, accounts accountAdmin, sessions sessionRevoker, pictures prefixDeleter) error {
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid account id %q", rawID)
	}
	id := parsed.String()
	logger := slog.Default().With("accountId", id, "action", action)

	switch action {
	case "disable":
		if err := accounts.SetDisabled(ctx, id, true); err != nil {
			return fmt.Errorf("disable account: %w", err)
		}
		revoked, err := sessions.DeleteForUser(ctx, id)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		logger.Info("account disabled", "revokedSessions", revoked)
	case "enable":
		if err := accounts.SetDisabled(ctx, id, false); err != nil {
			return fmt.Errorf("enable account: %w", err)
		}
		logger.Info("account enabled")
	case "delete":
		if err := accounts.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if pictures != nil {
			removed, err := pictures.DeletePrefix(ctx, storage.UserPrefix(id))
			if err != nil {
				return fmt.Errorf("delete account pictures: %w", err)
			}
			logger.Info("account pictures removed", "objects", removed)
		}
		logger.Info("account deleted")
	default:
		return fmt.Errorf("unknown account action %q", action)
	}

	return nil
}
