package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shoplane/accounts/config"
	"github.com/shoplane/accounts/internal/constants"
	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/internal/repository"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
)

// Claims is the signed payload of both token kinds. Kind distinguishes
// access from refresh; ID (jti) is unique per issued token and is what the
// revocation set is keyed by.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the user id.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}
	return uint(id), nil
}

// TokenPair is one issued access/refresh pair.
type TokenPair struct {
	Access  string
	Refresh string
}

// TokenService mints, verifies and revokes the signed bearer tokens. One
// shared HS256 secret signs everything; key rotation is not supported.
type TokenService struct {
	secret        []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	tokens        repository.TokenStore

	// now is injectable so expiry behavior is testable without sleeping
	now func() time.Time
}

func NewTokenService(cfg config.JWTConfig, tokens repository.TokenStore) *TokenService {
	return &TokenService{
		secret:        []byte(cfg.Secret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		rotateRefresh: cfg.RotateRefresh,
		tokens:        tokens,
		now:           time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessTTL exposes the configured access lifetime for response bodies
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// RotatesRefresh reports whether a refresh operation replaces the token
func (s *TokenService) RotatesRefresh() bool {
	return s.rotateRefresh
}

func (s *TokenService) sign(kind string, userID uint, ttl time.Duration, jti string) (string, error) {
	now := s.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    s.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return signed, nil
}

// IssuePair mints a refresh token with a fresh jti plus an access token for
// the same subject, and records the refresh jti as outstanding.
func (s *TokenService) IssuePair(ctx context.Context, user *model.User) (*TokenPair, error) {
	return s.issuePairFor(ctx, user.ID)
}

func (s *TokenService) issuePairFor(ctx context.Context, userID uint) (*TokenPair, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "IssuePair")

	refreshJTI := uuid.NewString()
	refresh, err := s.sign(constants.TokenKindRefresh, userID, s.refreshTTL, refreshJTI)
	if err != nil {
		return nil, err
	}

	access, err := s.sign(constants.TokenKindAccess, userID, s.accessTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}

	record := &model.RefreshToken{
		JTI:       refreshJTI,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.DebugWithContext(ctx, "Token pair issued").
		Uint("user_id", userID).
		String("refresh_jti", refreshJTI).
		Log()

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// parse validates signature, expiry and kind, without the revocation check.
func (s *TokenService) parse(tokenStr, expectedKind string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.WrapError(apperrors.ErrTokenExpired, err)
		}
		return nil, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}

	if claims.Kind != expectedKind {
		return nil, apperrors.ErrWrongTokenKind
	}

	return claims, nil
}

// Verify checks signature, expiry and kind, and for refresh tokens also the
// revocation set. Access tokens are never individually revocable, so their
// maximum exposure window is their lifetime.
func (s *TokenService) Verify(ctx context.Context, tokenStr, expectedKind string) (*Claims, error) {
	claims, err := s.parse(tokenStr, expectedKind)
	if err != nil {
		return nil, err
	}

	if expectedKind == constants.TokenKindRefresh {
		revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}
		if revoked {
			return nil, apperrors.ErrTokenRevoked
		}
	}

	return claims, nil
}

// Refresh exchanges a valid refresh token for a new access token. With
// rotation enabled the presented refresh token is revoked and a replacement
// refresh token is issued alongside.
func (s *TokenService) Refresh(ctx context.Context, refreshStr string) (*TokenPair, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Refresh")

	claims, err := s.Verify(ctx, refreshStr, constants.TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	if s.rotateRefresh {
		if err := s.tokens.Revoke(ctx, claims.ID); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}
		pair, err := s.issuePairFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		logger.InfoWithContext(ctx, "Refresh token rotated").
			Uint("user_id", userID).
			String("old_jti", claims.ID).
			Log()
		return pair, nil
	}

	access, err := s.sign(constants.TokenKindAccess, userID, s.accessTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access}, nil
}

// Revoke adds the refresh token's jti to the revocation set. Revoking an
// already-revoked token is a no-op success.
func (s *TokenService) Revoke(ctx context.Context, refreshStr string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Revoke")

	claims, err := s.parse(refreshStr, constants.TokenKindRefresh)
	if err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, claims.ID); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return nil
}

// RevokeAllForUser revokes every outstanding refresh token of the user.
// Individual revocation failures are swallowed so the bulk operation always
// reports success once attempted.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uint) error {
	ctx = ctxutil.WithOperation(ctx, "service", "RevokeAllForUser")

	outstanding, err := s.tokens.OutstandingForUser(ctx, userID)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	revoked := 0
	for _, token := range outstanding {
		if err := s.tokens.Revoke(ctx, token.JTI); err != nil {
			logger.WarnWithContext(ctx, "Skipping token during bulk revoke").
				String("jti", token.JTI).
				Err(err).
				Log()
			continue
		}
		revoked++
	}

	logger.InfoWithContext(ctx, "All sessions revoked for user").
		Uint("user_id", userID).
		Int("revoked", revoked).
		Log()

	return nil
}
