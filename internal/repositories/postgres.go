package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/commenter/backend/internal/db"
	"github.com/commenter/backend/internal/models"
)

const userColumns = `id, display_name, email, password_hash, picture_url, status_text, disabled, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new account record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, display_name, email, password_hash, picture_url, status_text, disabled, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.DisplayName, user.Email, user.Password, user.PictureURL, user.Status, user.Disabled, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches an account by its email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("select user by email: %w", err)
	}
	return user, nil
}

// Get fetches an account by identifier.
func (r *PostgresUserRepository) Get(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return models.User{}, err
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}
	return user, nil
}

// Exists reports whether an account with the identifier is registered.
func (r *PostgresUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		if pgCode(err) == pgInvalidText {
			return false, nil
		}
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// IsDisabled reports whether the account is disabled. Missing accounts yield ErrNotFound.
func (r *PostgresUserRepository) IsDisabled(ctx context.Context, id string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var disabled bool
	if err := conn.QueryRow(ctx, `SELECT disabled FROM users WHERE id = $1`, id).Scan(&disabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidText {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("select user disabled flag: %w", err)
	}
	return disabled, nil
}

// UpdateProfile applies the non-nil fields of update and returns the stored account.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET display_name = COALESCE($2, display_name),
            email = COALESCE($3, email),
            password_hash = COALESCE($4, password_hash),
            picture_url = COALESCE($5, picture_url),
            status_text = COALESCE($6, status_text),
            updated_at = $7
        WHERE id = $1
        RETURNING `+userColumns,
		id, update.DisplayName, update.Email, update.PasswordHash, update.PictureURL, update.Status, time.Now().UTC())

	user, err := scanUser(row)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return models.User{}, err
		case pgCode(err) == pgUniqueViolation:
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

// SetDisabled toggles the disabled flag for an account.
func (r *PostgresUserRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET disabled = $2, updated_at = $3
        WHERE id = $1
    `, id, disabled, time.Now().UTC())
	if err != nil {
		if pgCode(err) == pgInvalidText {
			return ErrNotFound
		}
		return fmt.Errorf("update user disabled flag: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes an account. Sessions and relationship rows cascade with it.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgInvalidText {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.Password, &user.PictureURL, &user.Status, &user.Disabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidText {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
