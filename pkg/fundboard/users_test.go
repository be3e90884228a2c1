package fundboard

import (
	"context"
	"strings"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := core.RegisterUser(ctx, Credentials{Username: "  alice ", Password: "secret123"})
	assertNoError(t, err, "RegisterUser")
	if user.Username != "alice" || user.ID == 0 {
		t.Fatalf("unexpected user %+v", user)
	}

	authed, err := core.Authenticate(ctx, Credentials{Username: "alice", Password: "secret123"})
	assertNoError(t, err, "Authenticate")
	if authed.ID != user.ID {
		t.Fatalf("expected id %d, got %d", user.ID, authed.ID)
	}

	var hash string
	if err := core.db.QueryRow("SELECT password_hash FROM users WHERE id = ?", user.ID).Scan(&hash); err != nil {
		t.Fatalf("read hash: %v", err)
	}
	if hash == "secret123" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("password is not stored as a bcrypt hash: %q", hash)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	testUser(t, core, "alice")

	_, err := core.Authenticate(ctx, Credentials{Username: "alice", Password: "wrong-pass"})
	assertErrorCode(t, err, ErrCodeUnauthorized, "wrong password")

	_, err = core.Authenticate(ctx, Credentials{Username: "nobody", Password: "secret123"})
	assertErrorCode(t, err, ErrCodeUnauthorized, "unknown user")

	_, err = core.Authenticate(ctx, Credentials{Username: "alice"})
	assertErrorCode(t, err, ErrCodeInvalidInput, "missing password")
}

func TestRegisterUserValidation(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	testUser(t, core, "alice")

	_, err := core.RegisterUser(ctx, Credentials{Username: "alice", Password: "another1"})
	assertErrorCode(t, err, ErrCodeDuplicate, "duplicate username")

	_, err = core.RegisterUser(ctx, Credentials{Username: "", Password: "secret123"})
	assertErrorCode(t, err, ErrCodeInvalidInput, "empty username")

	_, err = core.RegisterUser(ctx, Credentials{Username: "bob", Password: "123"})
	assertErrorCode(t, err, ErrCodeInvalidInput, "short password")

	_, err = core.RegisterUser(ctx, Credentials{Username: "bob", Password: strings.Repeat("x", 73)})
	assertErrorCode(t, err, ErrCodeInvalidInput, "long password")
}

func TestGetUserNotFound(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := core.GetUser(context.Background(), 42)
	assertErrorCode(t, err, ErrCodeNotFound, "GetUser")
}
