package service

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/shoplane/accounts/internal/errors"
	"github.com/shoplane/accounts/internal/model"
	"github.com/shoplane/accounts/internal/repository"
	"github.com/shoplane/accounts/pkg/ctxutil"
	"github.com/shoplane/accounts/pkg/logger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Outcome is the tri-state result of one verifier strategy, so the caller
// can tell "wrong password" apart from "this strategy does not apply".
type Outcome int

const (
	// OutcomeNoMatch means the strategy found no record for the identifier;
	// the next strategy in the chain may still match.
	OutcomeNoMatch Outcome = iota
	// OutcomeMatched means the strategy resolved and verified the user.
	OutcomeMatched
	// OutcomeRejected means the strategy resolved a record but the
	// credentials or account state failed; the chain stops here.
	OutcomeRejected
)

// VerifierStrategy authenticates one identifier/password shape.
type VerifierStrategy interface {
	Authenticate(ctx context.Context, identifier, password string) (*model.User, Outcome, error)
}

// CredentialVerifier tries an explicit ordered list of strategies. The first
// Matched or Rejected outcome wins; if every strategy reports NoMatch the
// result is ErrInvalidCredentials, indistinguishable from a wrong password.
type CredentialVerifier struct {
	strategies []VerifierStrategy
}

func NewCredentialVerifier(strategies ...VerifierStrategy) *CredentialVerifier {
	return &CredentialVerifier{strategies: strategies}
}

// NewDefaultVerifier wires the canonical email-or-username strategy.
func NewDefaultVerifier(users repository.UserStore) *CredentialVerifier {
	return NewCredentialVerifier(NewEmailOrUsernameStrategy(users))
}

func (v *CredentialVerifier) Authenticate(ctx context.Context, identifier, password string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Authenticate")

	for _, strategy := range v.strategies {
		user, outcome, err := strategy.Authenticate(ctx, identifier, password)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case OutcomeMatched:
			return user, nil
		case OutcomeRejected:
			return nil, rejectionError(user)
		}
	}

	return nil, apperrors.ErrInvalidCredentials
}

// rejectionError decides why a resolved user was rejected. The active flag
// is checked only after the password verified (the strategy guarantees the
// ordering), so here a nil user simply means bad credentials.
func rejectionError(user *model.User) error {
	if user != nil && !user.IsActive {
		return apperrors.ErrAccountDisabled
	}
	return apperrors.ErrInvalidCredentials
}

// EmailOrUsernameStrategy resolves the identifier against email or username,
// case-insensitive, then verifies the bcrypt password hash.
type EmailOrUsernameStrategy struct {
	users repository.UserStore
}

func NewEmailOrUsernameStrategy(users repository.UserStore) *EmailOrUsernameStrategy {
	return &EmailOrUsernameStrategy{users: users}
}

func (s *EmailOrUsernameStrategy) Authenticate(ctx context.Context, identifier, password string) (*model.User, Outcome, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, OutcomeNoMatch, nil
	}

	matches, err := s.users.FindByEmailOrUsername(ctx, identifier)
	if err != nil {
		return nil, OutcomeNoMatch, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	var user *model.User
	switch len(matches) {
	case 0:
		return nil, OutcomeNoMatch, nil
	case 1:
		user = &matches[0]
	default:
		// Data anomaly: an email collided with an unrelated username.
		// Fall back to the exact email match, which is unique.
		logger.WarnWithContext(ctx, "Ambiguous login identifier").
			String("identifier", identifier).
			Int("matches", len(matches)).
			Log()
		resolved, err := s.users.FindByEmail(ctx, identifier)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, OutcomeNoMatch, nil
			}
			return nil, OutcomeNoMatch, apperrors.WrapError(apperrors.ErrInternal, err)
		}
		user = resolved
	}

	// bcrypt's comparison is constant time per hash, so timing does not
	// reveal how much of the password matched.
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, OutcomeRejected, nil
	}

	// Active flag is checked only after the password verified so a guesser
	// cannot discover that an account exists but is disabled.
	if !user.IsActive {
		return user, OutcomeRejected, nil
	}

	return user, OutcomeMatched, nil
}
