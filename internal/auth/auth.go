// Package auth registers users and checks their credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/abuiliazeed/financial-projections/internal/domain/models"
	"github.com/abuiliazeed/financial-projections/internal/storage"
)

// MinPasswordLength counts characters; MaxPasswordBytes counts bytes.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials covers both an unknown username and a wrong
	// password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username is already taken")
)

// ValidationError reports a registration or login request that can never
// succeed as submitted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UserStore is the credential store the service works against.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (int64, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

type Service struct {
	users     UserStore
	logger    *slog.Logger
	cost      int
	dummyHash []byte
}

type Option func(*Service)

// WithCost sets the bcrypt cost used for new hashes.
func WithCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func New(users UserStore, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		users:  users,
		logger: logger,
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", s.cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	// Compared against when the username is unknown, so both login failures
	// cost one bcrypt comparison at the configured cost.
	dummy, err := HashPassword("not-a-real-password", s.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: generate dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates a user and returns its id.
func (s *Service) Register(ctx context.Context, username, password string) (int64, error) {
	const op = "auth.Register"

	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return 0, &ValidationError{Msg: fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength)}
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			s.logger.Info("Signup with taken username", slog.String("username", username))
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("Register new user", slog.String("username", username), slog.Int64("user_id", id))

	return id, nil
}

// Login returns the user whose credentials match. Unknown usernames and wrong
// passwords both yield ErrInvalidCredentials; only the log tells them apart.
func (s *Service) Login(ctx context.Context, username, password string) (models.User, error) {
	const op = "auth.Login"

	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return models.User{}, err
	}

	user, err := s.users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			_ = ComparePassword(password, s.dummyHash)
			s.logger.Info("Login failed: user not found", slog.String("username", username))
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := ComparePassword(password, []byte(user.PasswordHash)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Info("Login failed: invalid password", slog.String("username", username))
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func validateCredentials(username, password string) error {
	if username == "" || password == "" {
		return &ValidationError{Msg: "Username and password are required"}
	}
	if len(password) > MaxPasswordBytes {
		return &ValidationError{Msg: fmt.Sprintf("Password must be at most %d bytes long", MaxPasswordBytes)}
	}
	return nil
}
