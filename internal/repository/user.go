package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
	"gorm.io/gorm"
)

// UserStore is the credential-store contract the services depend on.
// Identifier lookups are case-insensitive; uniqueness of email, username and
// mobile is enforced by the storage layer, and Create reports a violation as
// apperrors.ErrUniquenessConflict, distinct from any validation failure.
type UserStore interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByEmailOrUsername returns every record whose email or username
	// matches the identifier. More than one row is a data anomaly the
	// verifier has to resolve, so the slice is returned as-is.
	FindByEmailOrUsername(ctx context.Context, identifier string) ([]model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, user *model.User) error
	Save(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error
	UpdateLastLogin(ctx context.Context, id uint) error
	List(ctx context.Context) ([]model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserStore {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "FindByID")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var user model.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}

	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "FindByEmail")

	var user model.User
	result := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}

	return &user, nil
}

func (r *userRepository) FindByEmailOrUsername(ctx context.Context, identifier string) ([]model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "FindByEmailOrUsername")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var users []model.User
	result := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?) OR LOWER(username) = LOWER(?)", identifier, identifier).
		Find(&users)

	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to look up user by identifier").
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	logger.DebugWithContext(ctx, "Identifier lookup completed").
		Int("matches", len(users)).
		Duration(time.Since(start)).
		Log()

	return users, nil
}

func (r *userRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "ExistsByUsername")

	var count int64
	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}

	return count > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Create")

	start := time.Now()
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		// Unique-index violation on email/username/mobile. Two concurrent
		// registrations with the same identity land here for the loser.
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			logger.WarnWithContext(ctx, "Uniqueness conflict on user create").
				String("email", user.Email).
				Duration(time.Since(start)).
				Log()
			return apperrors.WrapError(apperrors.ErrUniquenessConflict, result.Error)
		}
		logger.ErrorWithContext(ctx, "Failed to create user").
			String("email", user.Email).
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.InfoWithContext(ctx, "User created").
		String("email", user.Email).
		Uint("user_id", user.ID).
		Duration(time.Since(start)).
		Log()

	return nil
}

func (r *userRepository) Save(ctx context.Context, user *model.User) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Save")

	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return apperrors.WrapError(apperrors.ErrUniquenessConflict, result.Error)
		}
		return result.Error
	}
	return nil
}

// UpdateProfile mutates the allowed non-identity fields only. Callers build
// the field map from the update DTO so absent fields stay untouched.
func (r *userRepository) UpdateProfile(ctx context.Context, id uint, fields map[string]interface{}) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdateProfile")

	if len(fields) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return apperrors.WrapError(apperrors.ErrUniquenessConflict, result.Error)
		}
		logger.ErrorWithContext(ctx, "Failed to update profile").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}

	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uint) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdateLastLogin")

	result := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("last_login", time.Now())
	return result.Error
}

func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "List")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	var users []model.User
	result := r.db.WithContext(ctx).Order("id").Find(&users)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to list users").
			Duration(time.Since(start)).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return users, nil
}
