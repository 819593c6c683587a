// Package mail sends transactional email on behalf of the authentication
// service.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/avezhov/passport/internal/server/models"
)

// Notifier is the outbound email transport consumed by the authentication
// service. Implementations resolve success or failure only; they never return
// message contents to the caller.
type Notifier interface {
	// SendWelcome greets a newly signed-up user. Callers treat failures as
	// advisory.
	SendWelcome(ctx context.Context, user *models.User, profileURL string) error

	// SendPasswordReset sends the raw reset link to the user. Failures are on
	// the critical path of the reset workflow and must be surfaced.
	SendPasswordReset(ctx context.Context, user *models.User, resetURL string, validFor time.Duration) error
}

func welcomeBody(user *models.User, profileURL string) (subject, body string) {
	subject = "Welcome to Passport!"
	body = fmt.Sprintf(`Hi %v,

Welcome to Passport, we're glad to have you!

You can manage your account settings here:

%v
`, user.Name, profileURL)
	return subject, body
}

func passwordResetBody(user *models.User, resetURL string, validFor time.Duration) (subject, body string) {
	subject = fmt.Sprintf("Your password reset token (valid for %v minutes)", int(validFor.Minutes()))
	body = fmt.Sprintf(`Hi %v,

Forgot your password? Submit a PATCH request with your new password and password confirmation to:

%v

If you didn't forget your password, please ignore this email.
`, user.Name, resetURL)
	return subject, body
}
