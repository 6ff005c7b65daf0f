package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shoplane/accounts/config"
	"github.com/shoplane/accounts/internal/constants"
	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/internal/testutil"
)

func testJWTConfig(rotate bool) config.JWTConfig {
	return config.JWTConfig{
		Secret:        "test-secret-not-for-production",
		AccessTTL:     20 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		RotateRefresh: rotate,
		Issuer:        "accounts-test",
	}
}

func newTestTokenService(t *testing.T, rotate bool) (*TokenService, *testutil.FakeTokenStore, *time.Time) {
	t.Helper()
	store := testutil.NewFakeTokenStore()
	now := time.Now().Truncate(time.Second)
	svc := NewTokenService(testJWTConfig(rotate), store).WithClock(func() time.Time { return now })
	return svc, store, &now
}

func TestIssuePairRoundTrip(t *testing.T) {
	svc, store, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 42

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("IssuePair() returned an empty token")
	}
	if pair.Access == pair.Refresh {
		t.Fatal("access and refresh tokens must differ")
	}

	claims, err := svc.Verify(context.Background(), pair.Access, constants.TokenKindAccess)
	if err != nil {
		t.Fatalf("Verify(access) error = %v", err)
	}
	id, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if id != 42 {
		t.Errorf("UserID() = %d, want 42", id)
	}

	refreshClaims, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh)
	if err != nil {
		t.Fatalf("Verify(refresh) error = %v", err)
	}

	// The refresh jti must be recorded as outstanding
	if _, err := store.FindByJTI(context.Background(), refreshClaims.ID); err != nil {
		t.Errorf("refresh jti %q not recorded: %v", refreshClaims.ID, err)
	}
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc, _, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 1

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	if _, err := svc.Verify(context.Background(), pair.Access, constants.TokenKindRefresh); !errors.Is(err, apperrors.ErrWrongTokenKind) {
		t.Errorf("Verify(access as refresh) error = %v, want ErrWrongTokenKind", err)
	}
	if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindAccess); !errors.Is(err, apperrors.ErrWrongTokenKind) {
		t.Errorf("Verify(refresh as access) error = %v, want ErrWrongTokenKind", err)
	}
}

func TestVerifyRejectsGarbageAndForeignSignature(t *testing.T) {
	svc, _, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 1

	other := NewTokenService(config.JWTConfig{
		Secret:     "a-different-secret-entirely",
		AccessTTL:  20 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Issuer:     "accounts-test",
	}, testutil.NewFakeTokenStore())
	foreign, err := other.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not.a.token"},
		{name: "empty", token: ""},
		{name: "foreign signature", token: foreign.Access},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(context.Background(), tt.token, constants.TokenKindAccess)
			if !errors.Is(err, apperrors.ErrInvalidToken) {
				t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", tt.name, err)
			}
		})
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	svc, _, now := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 7

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	// Just inside the access lifetime
	*now = now.Add(19 * time.Minute)
	if _, err := svc.Verify(context.Background(), pair.Access, constants.TokenKindAccess); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	// Past the access lifetime, refresh still valid
	*now = now.Add(2 * time.Minute)
	if _, err := svc.Verify(context.Background(), pair.Access, constants.TokenKindAccess); !errors.Is(err, apperrors.ErrTokenExpired) {
		t.Errorf("Verify(expired access) error = %v, want ErrTokenExpired", err)
	}
	if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh); err != nil {
		t.Errorf("Verify(refresh) within lifetime error = %v", err)
	}

	// Past the refresh lifetime
	*now = now.Add(25 * time.Hour)
	if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh); !errors.Is(err, apperrors.ErrTokenExpired) {
		t.Errorf("Verify(expired refresh) error = %v, want ErrTokenExpired", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 3

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	if err := svc.Revoke(context.Background(), pair.Refresh); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh); !errors.Is(err, apperrors.ErrTokenRevoked) {
		t.Fatalf("Verify(revoked refresh) error = %v, want ErrTokenRevoked", err)
	}

	// Second revocation of the same token is a no-op success
	if err := svc.Revoke(context.Background(), pair.Refresh); err != nil {
		t.Errorf("Revoke() again error = %v, want nil", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 9

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	rotated, err := svc.Refresh(context.Background(), pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if rotated.Refresh == "" {
		t.Fatal("rotation must issue a replacement refresh token")
	}
	if rotated.Refresh == pair.Refresh {
		t.Fatal("rotation must issue a different refresh token")
	}

	// The presented token is burned; replaying it fails
	if _, err := svc.Refresh(context.Background(), pair.Refresh); !errors.Is(err, apperrors.ErrTokenRevoked) {
		t.Errorf("Refresh(replayed) error = %v, want ErrTokenRevoked", err)
	}

	// The replacement works and carries the same subject
	claims, err := svc.Verify(context.Background(), rotated.Refresh, constants.TokenKindRefresh)
	if err != nil {
		t.Fatalf("Verify(rotated refresh) error = %v", err)
	}
	if id, _ := claims.UserID(); id != 9 {
		t.Errorf("rotated refresh subject = %d, want 9", id)
	}
}

func TestRefreshWithoutRotation(t *testing.T) {
	svc, _, _ := newTestTokenService(t, false)
	user := &model.User{}
	user.ID = 4

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.Access == "" {
		t.Fatal("Refresh() must mint an access token")
	}
	if refreshed.Refresh != "" {
		t.Errorf("Refresh() without rotation returned a refresh token")
	}

	// The original refresh token stays valid and reusable
	if _, err := svc.Refresh(context.Background(), pair.Refresh); err != nil {
		t.Errorf("Refresh(reuse) error = %v, want nil", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	svc, _, _ := newTestTokenService(t, true)
	alice := &model.User{}
	alice.ID = 1
	bob := &model.User{}
	bob.ID = 2

	var alicePairs []*TokenPair
	for i := 0; i < 3; i++ {
		pair, err := svc.IssuePair(context.Background(), alice)
		if err != nil {
			t.Fatalf("IssuePair() error = %v", err)
		}
		alicePairs = append(alicePairs, pair)
	}
	bobPair, err := svc.IssuePair(context.Background(), bob)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	if err := svc.RevokeAllForUser(context.Background(), alice.ID); err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}

	for i, pair := range alicePairs {
		if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh); !errors.Is(err, apperrors.ErrTokenRevoked) {
			t.Errorf("alice token %d: Verify() error = %v, want ErrTokenRevoked", i, err)
		}
	}

	// Bob's session is untouched
	if _, err := svc.Verify(context.Background(), bobPair.Refresh, constants.TokenKindRefresh); err != nil {
		t.Errorf("bob token: Verify() error = %v, want nil", err)
	}
}

func TestVerifyUnknownJTITreatedAsRevoked(t *testing.T) {
	svc, store, _ := newTestTokenService(t, true)
	user := &model.User{}
	user.ID = 5

	pair, err := svc.IssuePair(context.Background(), user)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}

	claims, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	// Drop the outstanding record, as the expiry cleanup eventually would
	store.Forget(claims.ID)

	if _, err := svc.Verify(context.Background(), pair.Refresh, constants.TokenKindRefresh); !errors.Is(err, apperrors.ErrTokenRevoked) {
		t.Errorf("Verify(unknown jti) error = %v, want ErrTokenRevoked", err)
	}
}
