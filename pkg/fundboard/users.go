package fundboard

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxUsernameLength = 64
	bcryptCost        = 10
)

// User is an account owning settings, funds and chat history.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Credentials carries a username and password.
type Credentials struct {
	Username string
	Password string
}

// RegisterUser creates a user with a bcrypt password hash.
func (c *Core) RegisterUser(ctx context.Context, creds Credentials) (*User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" {
		return nil, invalidInput("username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, invalidInput("username is too long")
	}
	if len(creds.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least 6 characters")
	}
	// bcrypt ignores input past 72 bytes.
	if len(creds.Password) > 72 {
		return nil, invalidInput("password is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcryptCost)
	if err != nil {
		return nil, WrapError(ErrCodeInternal, "failed to hash password", err)
	}

	var exists int
	if err := c.queryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&exists); err != nil {
		return nil, WrapError(ErrCodeDatabase, "failed to check username", err)
	}
	if exists > 0 {
		return nil, NewError(ErrCodeDuplicate, "username already exists")
	}

	result, err := c.execContext(ctx, "INSERT INTO users (username, password_hash) VALUES (?, ?)", username, string(hash))
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "failed to read user id", err)
	}
	c.logger.Info("user registered", "user_id", id, "username", username)
	return c.GetUser(ctx, id)
}

// Authenticate verifies credentials and returns the user.
// Unknown users and wrong passwords produce the same error.
func (c *Core) Authenticate(ctx context.Context, creds Credentials) (*User, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		return nil, invalidInput("username and password are required")
	}

	var user User
	var hash string
	var createdAt sql.NullString
	err := c.queryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewError(ErrCodeUnauthorized, "invalid username or password")
	}
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "failed to load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, NewError(ErrCodeUnauthorized, "invalid username or password")
	}
	user.CreatedAt = createdAt.String
	return &user, nil
}

// GetUser loads a user by id.
func (c *Core) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	var createdAt sql.NullString
	err := c.queryRowContext(ctx, "SELECT id, username, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("user not found")
	}
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "failed to load user", err)
	}
	user.CreatedAt = createdAt.String
	return &user, nil
}
