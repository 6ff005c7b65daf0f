package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shoplane/accounts/internal/constants"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
	"github.com/shoplane/accounts/pkg/redis"
	"gorm.io/gorm"
)

// TokenStore persists the outstanding-token records and the revocation set.
// The database is the source of truth; redis is a best-effort fast path for
// revocation lookups, keyed by jti with a TTL that matches token expiry.
type TokenStore interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByJTI(ctx context.Context, jti string) (*model.RefreshToken, error)
	// Revoke is idempotent: revoking an already-revoked jti is a no-op.
	Revoke(ctx context.Context, jti string) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// OutstandingForUser returns the non-revoked, unexpired tokens of a user.
	OutstandingForUser(ctx context.Context, userID uint) ([]model.RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type tokenRepository struct {
	db    *gorm.DB
	cache *redis.Client
}

func NewTokenRepository(db *gorm.DB, cache *redis.Client) TokenStore {
	return &tokenRepository{db: db, cache: cache}
}

func revocationKey(jti string) string {
	return constants.CacheKeyRevokedToken + jti
}

func (r *tokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "CreateToken")

	result := r.db.WithContext(ctx).Create(token)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to record outstanding token").
			Uint("user_id", token.UserID).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.DebugWithContext(ctx, "Outstanding token recorded").
		Uint("user_id", token.UserID).
		String("jti", token.JTI).
		Log()

	return nil
}

func (r *tokenRepository) FindByJTI(ctx context.Context, jti string) (*model.RefreshToken, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "FindByJTI")

	var token model.RefreshToken
	result := r.db.WithContext(ctx).Where("jti = ?", jti).First(&token)
	if result.Error != nil {
		return nil, result.Error
	}

	return &token, nil
}

func (r *tokenRepository) Revoke(ctx context.Context, jti string) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "RevokeToken")

	token, err := r.FindByJTI(ctx, jti)
	if err != nil {
		return err
	}

	if !token.Revoked() {
		now := time.Now()
		result := r.db.WithContext(ctx).Model(&model.RefreshToken{}).
			Where("jti = ? AND revoked_at IS NULL", jti).
			Update("revoked_at", now)
		if result.Error != nil {
			logger.ErrorWithContext(ctx, "Failed to revoke token").
				String("jti", jti).
				Err(result.Error).
				Log()
			return result.Error
		}
		// RowsAffected == 0 means another request revoked it first, which
		// is fine: revocation is idempotent.
	}

	r.cacheRevocation(ctx, token)

	logger.InfoWithContext(ctx, "Refresh token revoked").
		String("jti", jti).
		Uint("user_id", token.UserID).
		Log()

	return nil
}

// cacheRevocation mirrors the revocation into redis so hot-path checks skip
// the database. Cache errors are logged and swallowed; the database row is
// already authoritative.
func (r *tokenRepository) cacheRevocation(ctx context.Context, token *model.RefreshToken) {
	if !r.cache.IsEnabled() {
		return
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}

	if err := r.cache.SetWithTTL(ctx, revocationKey(token.JTI), "1", ttl); err != nil {
		logger.WarnWithContext(ctx, "Failed to cache token revocation").
			String("jti", token.JTI).
			Err(err).
			Log()
	}
}

func (r *tokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "IsRevoked")

	if r.cache.IsEnabled() {
		revoked, err := r.cache.Exists(ctx, revocationKey(jti))
		if err == nil && revoked {
			return true, nil
		}
		// Cache miss or cache error, fall through to the database
	}

	token, err := r.FindByJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// A jti we never issued or already cleaned up is treated as
			// revoked rather than valid.
			return true, nil
		}
		return false, err
	}

	return token.Revoked(), nil
}

func (r *tokenRepository) OutstandingForUser(ctx context.Context, userID uint) ([]model.RefreshToken, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "OutstandingForUser")

	var tokens []model.RefreshToken
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, time.Now()).
		Find(&tokens)
	if result.Error != nil {
		return nil, result.Error
	}

	return tokens, nil
}

func (r *tokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "DeleteExpired")

	start := time.Now()
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("expires_at < ?", time.Now()).
		Delete(&model.RefreshToken{})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to delete expired tokens").
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		logger.InfoWithContext(ctx, "Expired refresh tokens deleted").
			Int64("deleted", result.RowsAffected).
			Duration(time.Since(start)).
			Log()
	}

	return result.RowsAffected, nil
}
