// Package common contains sentinel errors and small helpers shared across
// passport components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound   = errors.New("not found")
	ErrorEmailTaken = errors.New("email already in use")

	// Input validation.
	ErrorValidation = errors.New("validation error")

	// Authentication errors. ErrorInvalidCredentials carries the same message
	// whether the email or the password was wrong.
	ErrorInvalidCredentials = errors.New("incorrect email or password")
	ErrorUnauthenticated    = errors.New("you are not logged in")
	ErrorInvalidToken       = errors.New("invalid or expired token")
	ErrorUserGone           = errors.New("the user belonging to this token no longer exists")
	ErrorStalePassword      = errors.New("password was changed after the token was issued, please log in again")

	// Authorization errors.
	ErrorForbidden = errors.New("you do not have permission to perform this action")

	// Password reset workflow errors.
	ErrorResetTokenInvalid = errors.New("token is invalid or has expired")
	ErrorDelivery          = errors.New("there was an error sending the email, try again later")

	ErrorInternal = errors.New("internal error")
)
