package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"fakebroker/api/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const defaultSearchLimit = 50

type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore instance.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a new user. Email and username are both unique.
func (s *UserStore) CreateUser(ctx context.Context, username, email string, hashedPassword []byte) (*models.User, error) {
	user := &models.User{}
	query := `
		INSERT INTO users (id, username, email, hashed_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id, username, email, created_at, updated_at;
	`
	err := s.db.QueryRowContext(ctx, query, uuid.New().String(), username, email, hashedPassword).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

const userColumns = `id, username, email, hashed_password, profile, profile_updated_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var profile []byte
	var profileUpdatedAt sql.NullTime
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.HashedPassword,
		&profile,
		&profileUpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(profile) > 0 {
		var p models.UserProfile
		if err := json.Unmarshal(profile, &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		user.Profile = &p
	}
	if profileUpdatedAt.Valid {
		t := profileUpdatedAt.Time
		user.ProfileUpdatedAt = &t
	}
	return user, nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// SearchUsers matches q case-insensitively against username and email.
// q is matched literally; LIKE wildcards in it are escaped.
func (s *UserStore) SearchUsers(ctx context.Context, q string) ([]models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE username ILIKE $1 ESCAPE '\' OR email ILIKE $1 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT $2;`
	rows, err := s.db.QueryContext(ctx, query, "%"+escapeLike(q)+"%", defaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// SaveProfile replaces the user's stored classification.
func (s *UserStore) SaveProfile(ctx context.Context, userID string, profile models.UserProfile, at time.Time) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET profile = $2, profile_updated_at = $3, updated_at = now() WHERE id = $1;`,
		userID, raw, at)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
