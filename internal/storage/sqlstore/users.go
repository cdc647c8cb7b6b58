package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abuiliazeed/financial-projections/internal/domain/models"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

// CreateUser inserts a user and returns its id. The unique constraint on
// username decides duplicates, so concurrent signups cannot both succeed.
func (s *Storage) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	const op = "storage.sqlstore.CreateUser"

	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id"),
		username, passwordHash,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (s *Storage) UserByUsername(ctx context.Context, username string) (models.User, error) {
	const op = "storage.sqlstore.UserByUsername"

	var user models.User
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, username, password_hash FROM users WHERE username = ?"),
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.sqlstore.UserByID"

	var user models.User
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, username, password_hash FROM users WHERE id = ?"),
		id,
	).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
