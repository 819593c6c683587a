package users

import (
	"context"
	"time"

	"github.com/avezhov/passport/internal/server/models"
)

// Repository is the user store consumed by the authentication service.
// Lookups return common.ErrorNotFound when no record matches.
type Repository interface {
	// Create persists a new user record. A duplicate email fails with
	// common.ErrorEmailTaken.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail looks a user up by their normalized (lowercase) email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID looks a user up by id.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// UpdatePassword stores a new password hash and changed-at timestamp and
	// clears any pending reset token in the same statement.
	UpdatePassword(ctx context.Context, id string, passwordHash []byte, changedAt time.Time) error

	// SetResetToken stores the reset-token hash/expiry pair, replacing any
	// previous pair.
	SetResetToken(ctx context.Context, id string, tokenHash string, expiresAt time.Time) error

	// ClearResetToken removes a pending reset-token pair, if any.
	ClearResetToken(ctx context.Context, id string) error

	// ResetPasswordByToken atomically consumes an unexpired reset token: in a
	// single conditional update it matches the stored token hash, checks the
	// expiry against now, sets the new password hash and changed-at
	// timestamp, and clears the reset-token fields. It returns the updated
	// user, or common.ErrorNotFound if no row matched.
	ResetPasswordByToken(ctx context.Context, tokenHash string, passwordHash []byte, changedAt, now time.Time) (*models.User, error)

	// List returns all user records, newest first.
	List(ctx context.Context) ([]*models.User, error)
}
