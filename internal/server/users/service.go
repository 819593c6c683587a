// Package users contains the user store and the authentication service built
// on top of it: sign-up, login, token verification, password change, and the
// password-reset workflow.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/logging"
	"github.com/avezhov/passport/internal/server/auth"
	"github.com/avezhov/passport/internal/server/config"
	"github.com/avezhov/passport/internal/server/mail"
	"github.com/avezhov/passport/internal/server/models"
	"github.com/google/uuid"
)

const minPasswordLength = 8

var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// passwordChangedBackoff is subtracted from the password-changed timestamp on
// every password write. Without it a session token minted in the same instant
// as the write could be rejected as stale by the issued-at comparison.
const passwordChangedBackoff = time.Second

// Service provides the authentication operations:
//   - SignUp / Login / VerifyAndLoad / UpdatePassword
//   - ForgotPassword / ResetPassword
type Service struct {
	repo                  Repository
	notifier              mail.Notifier
	logger                logging.Logger
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	publicBaseURL         string

	// now is swapped out in tests.
	now func() time.Time
}

// NewService constructs a Service using the repository, notifier, and server
// config.
func NewService(repo Repository, notifier mail.Notifier, logger logging.Logger, cfg *config.Config) *Service {
	return &Service{
		repo:                  repo,
		notifier:              notifier,
		logger:                logger.With("module", "users"),
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		publicBaseURL:         strings.TrimRight(cfg.PublicBaseURL, "/"),
		now:                   time.Now,
	}
}

// SignUp creates a user with role "user", hashes the password, and issues a
// session token. The welcome email is dispatched in the background; its
// outcome never affects the returned token or user.
func (s *Service) SignUp(ctx context.Context, name, email, password, passwordConfirm string) (*models.User, string, error) {
	email = normalizeEmail(email)

	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", common.ErrorValidation)
	}
	if !emailRegexp.MatchString(email) {
		return nil, "", fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}
	if err := validateNewPassword(password, passwordConfirm); err != nil {
		return nil, "", err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}

	user, err = s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorEmailTaken) {
			return nil, "", fmt.Errorf("%w: %v", common.ErrorValidation, common.ErrorEmailTaken)
		}
		return nil, "", common.ErrorInternal
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	// Fire-and-forget: the sign-up response is already decided.
	welcomeCtx := context.WithoutCancel(ctx)
	go func() {
		profileURL := s.publicBaseURL + "/me"
		if err := s.notifier.SendWelcome(welcomeCtx, user, profileURL); err != nil {
			s.logger.Warn(welcomeCtx, "welcome email failed", "user_id", user.ID, "error", err)
		}
	}()

	return user, token, nil
}

// Login verifies credentials and issues a session token. Absent input, an
// unknown email, and a wrong password all fail with the same
// common.ErrorInvalidCredentials so the response does not reveal which check
// failed.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", common.ErrorInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorInvalidCredentials
		}
		return nil, "", common.ErrorInternal
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, "", common.ErrorInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	return user, token, nil
}

// VerifyAndLoad is the access-gate entry point: it verifies the bearer token,
// resolves the subject, and checks the token against the user's last password
// change. On success it returns the user and the token's issued-at time.
func (s *Service) VerifyAndLoad(ctx context.Context, bearerToken string) (*models.User, time.Time, error) {
	if bearerToken == "" {
		return nil, time.Time{}, common.ErrorUnauthenticated
	}

	session, err := auth.ParseSessionToken(bearerToken, s.jwtSecret, s.now())
	if err != nil {
		return nil, time.Time{}, common.ErrorInvalidToken
	}

	user, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, time.Time{}, common.ErrorUserGone
		}
		return nil, time.Time{}, common.ErrorInternal
	}

	if user.PasswordChangedAfter(session.IssuedAt) {
		return nil, time.Time{}, common.ErrorStalePassword
	}

	return user, session.IssuedAt, nil
}

// UpdatePassword re-hashes and stores a new password for an authenticated
// user after verifying the current one, then issues a fresh session token.
func (s *Service) UpdatePassword(ctx context.Context, user *models.User, currentPassword, newPassword, newPasswordConfirm string) (string, error) {
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return "", common.ErrorInvalidCredentials
	}
	if err := validateNewPassword(newPassword, newPasswordConfirm); err != nil {
		return "", err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return "", common.ErrorInternal
	}

	changedAt := s.now().Add(-passwordChangedBackoff)
	if err := s.repo.UpdatePassword(ctx, user.ID, hash, changedAt); err != nil {
		return "", common.ErrorInternal
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", common.ErrorInternal
	}

	return token, nil
}

// ForgotPassword issues a reset token for the user with the given email,
// stores its hash and expiry, and emails the raw token inside a reset link.
// The email dispatch is awaited: on failure the just-written reset fields are
// cleared before common.ErrorDelivery is returned, so no reset state is left
// that the user has no way to redeem.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return common.ErrorInternal
	}

	reset, err := auth.NewResetToken(s.now())
	if err != nil {
		return common.ErrorInternal
	}

	// Replaces any previous pair: only the latest token is ever redeemable.
	if err := s.repo.SetResetToken(ctx, user.ID, reset.Hash, reset.ExpiresAt); err != nil {
		return common.ErrorInternal
	}

	resetURL := s.publicBaseURL + "/reset-password/" + reset.Raw
	if err := s.notifier.SendPasswordReset(ctx, user, resetURL, auth.ResetTokenValidity); err != nil {
		s.logger.Error(ctx, "password reset email failed", "user_id", user.ID, "error", err)
		if clearErr := s.repo.ClearResetToken(ctx, user.ID); clearErr != nil {
			s.logger.Error(ctx, "clearing reset token failed", "user_id", user.ID, "error", clearErr)
		}
		return common.ErrorDelivery
	}

	return nil
}

// ResetPassword consumes a raw reset token: it validates the new password,
// re-hashes it, and atomically matches the stored token hash and expiry while
// writing the new credentials and clearing the reset fields. A fresh session
// token is issued on success.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword, newPasswordConfirm string) (*models.User, string, error) {
	if err := validateNewPassword(newPassword, newPasswordConfirm); err != nil {
		return nil, "", err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	now := s.now()
	tokenHash := auth.HashResetToken(rawToken)
	changedAt := now.Add(-passwordChangedBackoff)

	user, err := s.repo.ResetPasswordByToken(ctx, tokenHash, hash, changedAt, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, "", common.ErrorResetTokenInvalid
		}
		return nil, "", common.ErrorInternal
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return nil, "", common.ErrorInternal
	}

	return user, token, nil
}

// List returns every user record. Intended for admin-gated callers; the API
// layer applies the role check.
func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	result, err := s.repo.List(ctx)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return result, nil
}

func (s *Service) issueToken(userID string) (string, error) {
	return auth.GenerateSessionToken(userID, s.jwtSecret, s.tokenValidityDuration, s.now())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateNewPassword(password, confirm string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", common.ErrorValidation)
	}
	return nil
}
