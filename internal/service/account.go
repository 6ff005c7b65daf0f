package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shoplane/accounts/internal/dto"
	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/internal/repository"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountService orchestrates registration, login, logout and profile access
// by composing the credential store, verifier and token service. It holds no
// state between requests; session state lives in the store and the
// revocation set.
type AccountService struct {
	users     repository.UserStore
	verifier  *CredentialVerifier
	tokens    *TokenService
	usernames *UsernameGenerator
}

func NewAccountService(
	users repository.UserStore,
	verifier *CredentialVerifier,
	tokens *TokenService,
	usernames *UsernameGenerator,
) *AccountService {
	return &AccountService{
		users:     users,
		verifier:  verifier,
		tokens:    tokens,
		usernames: usernames,
	}
}

func (s *AccountService) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return string(hashed), nil
}

// Register creates a user with a generated username and hashed password.
// Uniqueness violations surface as ErrUniquenessConflict from the store.
func (s *AccountService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Register")

	email := strings.ToLower(strings.TrimSpace(req.Email))

	logger.InfoWithContext(ctx, "Registering user").
		String("email", email).
		Log()

	username, err := s.usernames.GenerateUnique(ctx, req.FirstName, s.users.ExistsByUsername)
	if err != nil {
		logger.ErrorWithContext(ctx, "Username generation failed").
			String("email", email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	hashed, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:     email,
		Username:  username,
		Password:  hashed,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Address:   strings.TrimSpace(req.Address),
		PinCode:   strings.TrimSpace(req.PinCode),
		IsActive:  true,
	}
	if mobile := strings.TrimSpace(req.Mobile); mobile != "" {
		user.Mobile = &mobile
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrUniquenessConflict) {
			// The store's constraint fired, so a concurrent or earlier
			// registration owns one of the identifiers.
			logger.WarnWithContext(ctx, "Registration lost uniqueness race").
				String("email", email).
				Log()
			return nil, err
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "User registered").
		String("email", email).
		String("username", username).
		Uint("user_id", user.ID).
		Log()

	resp := toUserResponse(user)
	return &resp, nil
}

// Login authenticates the identifier/password pair and issues a token pair.
func (s *AccountService) Login(ctx context.Context, identifier, password string) (*dto.LoginResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Login")

	user, err := s.verifier.Authenticate(ctx, identifier, password)
	if err != nil {
		logger.WarnWithContext(ctx, "Login failed").
			String("identifier", identifier).
			Err(err).
			Log()
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	// Best effort; a failed timestamp update never fails the login
	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.WarnWithContext(ctx, "Failed to update last login").
			Uint("user_id", user.ID).
			Err(err).
			Log()
	}

	logger.InfoWithContext(ctx, "User logged in").
		Uint("user_id", user.ID).
		String("username", user.Username).
		Log()

	return &dto.LoginResponse{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresIn: int(s.tokens.AccessTTL().Seconds()),
		User:      toUserResponse(user),
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token, rotating
// the refresh token when rotation is configured.
func (s *AccountService) Refresh(ctx context.Context, refresh string) (*dto.RefreshResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Refresh")

	pair, err := s.tokens.Refresh(ctx, refresh)
	if err != nil {
		return nil, err
	}

	return &dto.RefreshResponse{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		ExpiresIn: int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token
func (s *AccountService) Logout(ctx context.Context, refresh string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Logout")
	return s.tokens.Revoke(ctx, refresh)
}

// LogoutAll revokes every outstanding refresh token of the user
func (s *AccountService) LogoutAll(ctx context.Context, userID uint) error {
	ctx = ctxutil.WithOperation(ctx, "service", "LogoutAll")
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// Profile returns the user's own record, minus the password
func (s *AccountService) Profile(ctx context.Context, userID uint) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Profile")

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	resp := toUserResponse(user)
	return &resp, nil
}

// UpdateProfile mutates the allowed non-identity fields only. Email and
// username are immutable here; absent fields stay untouched.
func (s *AccountService) UpdateProfile(ctx context.Context, userID uint, req *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "UpdateProfile")

	fields := map[string]interface{}{}
	if req.FirstName != nil {
		fields["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		fields["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Mobile != nil {
		mobile := strings.TrimSpace(*req.Mobile)
		if mobile == "" {
			fields["mobile"] = nil
		} else {
			fields["mobile"] = mobile
		}
	}
	if req.Address != nil {
		fields["address"] = strings.TrimSpace(*req.Address)
	}
	if req.PinCode != nil {
		fields["pin_code"] = strings.TrimSpace(*req.PinCode)
	}

	if len(fields) > 0 {
		if err := s.users.UpdateProfile(ctx, userID, fields); err != nil {
			if errors.Is(err, apperrors.ErrUniquenessConflict) {
				return nil, err
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.ErrUserNotFound
			}
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}

		logger.InfoWithContext(ctx, "Profile updated").
			Uint("user_id", userID).
			Int("fields", len(fields)).
			Log()
	}

	return s.Profile(ctx, userID)
}

// ListUsers returns every user record, for staff callers
func (s *AccountService) ListUsers(ctx context.Context) ([]dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "ListUsers")

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	responses := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}

	return responses, nil
}

// CreateSuperuser provisions an administrative account, used by the
// bootstrap path. Flags are forced on; callers cannot downgrade them here.
func (s *AccountService) CreateSuperuser(ctx context.Context, email, password, firstName string) (*dto.UserResponse, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "CreateSuperuser")

	username, err := s.usernames.GenerateUnique(ctx, firstName, s.users.ExistsByUsername)
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:       strings.ToLower(strings.TrimSpace(email)),
		Username:    username,
		Password:    hashed,
		FirstName:   strings.TrimSpace(firstName),
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrUniquenessConflict) {
			return nil, err
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Superuser provisioned").
		String("email", user.Email).
		Uint("user_id", user.ID).
		Log()

	resp := toUserResponse(user)
	return &resp, nil
}

func toUserResponse(user *model.User) dto.UserResponse {
	resp := dto.UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Address:   user.Address,
		PinCode:   user.PinCode,
		IsActive:  user.IsActive,
		IsStaff:   user.IsStaff,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if user.Mobile != nil {
		resp.Mobile = *user.Mobile
	}
	return resp
}
