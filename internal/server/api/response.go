package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/server/models"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"

	sessionCookieName = "session"

	// loggedOutCookieTTL is the lifetime of the sentinel cookie that replaces
	// the session cookie on logout.
	loggedOutCookieTTL = 10 * time.Second
)

// response is the envelope every endpoint answers with.
type response struct {
	Status  string               `json:"status"`
	Token   string               `json:"token,omitempty"`
	User    *models.PublicUser   `json:"user,omitempty"`
	Users   []*models.PublicUser `json:"users,omitempty"`
	Message string               `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeError maps a domain error onto an HTTP status and the fail envelope.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	message := common.ErrorInternal.Error()

	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrorResetTokenInvalid):
		code, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorInvalidCredentials),
		errors.Is(err, common.ErrorUnauthenticated),
		errors.Is(err, common.ErrorInvalidToken),
		errors.Is(err, common.ErrorUserGone),
		errors.Is(err, common.ErrorStalePassword):
		code, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, common.ErrorForbidden):
		code, message = http.StatusForbidden, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		code, message = http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrorDelivery):
		code, message = http.StatusServiceUnavailable, err.Error()
	}

	writeJSON(w, code, response{Status: statusFail, Message: message})
}

// setSessionCookie mirrors the bearer token into an HTTP-only cookie so
// browser clients do not have to store the token themselves.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(s.tokenValidity),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie overwrites the session cookie with a short-lived
// "loggedout" sentinel. The server itself holds nothing to revoke.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "loggedout",
		Path:     "/",
		Expires:  time.Now().Add(loggedOutCookieTTL),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}
