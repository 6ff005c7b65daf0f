package service

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return string(hashed)
}

func seedUser(t *testing.T, store *testutil.FakeUserStore, email, username, password string) *model.User {
	t.Helper()
	user := &model.User{
		Email:    email,
		Username: username,
		Password: mustHash(t, password),
		IsActive: true,
	}
	if err := store.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

func TestAuthenticateByEmailOrUsername(t *testing.T) {
	store := testutil.NewFakeUserStore()
	alice := seedUser(t, store, "alice@example.com", "alice_x1y2z3", "password1")
	verifier := NewDefaultVerifier(store)

	tests := []struct {
		name       string
		identifier string
	}{
		{name: "by email", identifier: "alice@example.com"},
		{name: "by username", identifier: "alice_x1y2z3"},
		{name: "email case folded", identifier: "Alice@Example.COM"},
		{name: "username case folded", identifier: "ALICE_X1Y2Z3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := verifier.Authenticate(context.Background(), tt.identifier, "password1")
			if err != nil {
				t.Fatalf("Authenticate(%q) error = %v", tt.identifier, err)
			}
			if user.ID != alice.ID {
				t.Errorf("Authenticate(%q) resolved user %d, want %d", tt.identifier, user.ID, alice.ID)
			}
		})
	}
}

func TestAuthenticateFailuresIndistinguishable(t *testing.T) {
	store := testutil.NewFakeUserStore()
	seedUser(t, store, "alice@example.com", "alice_x1y2z3", "password1")
	verifier := NewDefaultVerifier(store)

	tests := []struct {
		name       string
		identifier string
		password   string
	}{
		{name: "wrong password", identifier: "alice@example.com", password: "nope"},
		{name: "unknown identifier", identifier: "nobody@example.com", password: "password1"},
		{name: "empty identifier", identifier: "", password: "password1"},
		{name: "empty password", identifier: "alice@example.com", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Authenticate(context.Background(), tt.identifier, tt.password)
			if !errors.Is(err, apperrors.ErrInvalidCredentials) {
				t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	store := testutil.NewFakeUserStore()
	bob := seedUser(t, store, "bob@example.com", "bob_a1b2c3", "password1")
	store.Deactivate(bob.ID)
	verifier := NewDefaultVerifier(store)

	// Correct password on a disabled account reports the disabled state
	_, err := verifier.Authenticate(context.Background(), "bob@example.com", "password1")
	if !errors.Is(err, apperrors.ErrAccountDisabled) {
		t.Fatalf("Authenticate() error = %v, want ErrAccountDisabled", err)
	}

	// Wrong password must not reveal that the account exists but is disabled
	_, err = verifier.Authenticate(context.Background(), "bob@example.com", "nope")
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateAmbiguousIdentifierFallsBackToEmail(t *testing.T) {
	store := testutil.NewFakeUserStore()
	owner := seedUser(t, store, "shared@example.com", "owner_q1w2e3", "ownerpass")
	squatter := seedUser(t, store, "squatter@example.com", "shared@example.com", "squatpass")

	verifier := NewDefaultVerifier(store)

	user, err := verifier.Authenticate(context.Background(), "shared@example.com", "ownerpass")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if user.ID != owner.ID {
		t.Errorf("ambiguous identifier resolved user %d, want email owner %d", user.ID, owner.ID)
	}

	// The squatter's password no longer works through the shared identifier
	_, err = verifier.Authenticate(context.Background(), "shared@example.com", "squatpass")
	if !errors.Is(err, apperrors.ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidCredentials for %d", err, squatter.ID)
	}
}

func TestAuthenticateStoreError(t *testing.T) {
	store := testutil.NewFakeUserStore()
	store.Err = errors.New("connection refused")
	verifier := NewDefaultVerifier(store)

	_, err := verifier.Authenticate(context.Background(), "alice@example.com", "password1")
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Fatalf("Authenticate() error = %v, want ErrInternal", err)
	}
}
