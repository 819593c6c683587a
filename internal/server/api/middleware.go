package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/server/models"
	"github.com/gorilla/mux"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Identity is attached to the request context once the access gate has
// verified the caller. The user's password hash is still present here; only
// the response projection strips it.
type Identity struct {
	User          *models.User
	TokenIssuedAt time.Time
}

// protect is the access gate. It extracts the bearer token, verifies it,
// loads the subject, and attaches the identity to the request context. Any
// failure short-circuits the request; no downstream handler executes.
func (s *Server) protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		user, issuedAt, err := s.users.VerifyAndLoad(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		identity := &Identity{User: user, TokenIssuedAt: issuedAt}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// restrictTo gates a route on role membership. It must run after protect.
func (s *Server) restrictTo(allowed ...models.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFromContext(r.Context())
			if identity == nil {
				writeError(w, common.ErrorUnauthenticated)
				return
			}

			for _, role := range allowed {
				if identity.User.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, common.ErrorForbidden)
		})
	}
}

// bearerToken pulls the session token from the Authorization header, falling
// back to the session cookie set for browser clients. Returns "" when the
// request carries neither.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}

	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "loggedout" {
		return c.Value
	}

	return ""
}

func identityFromContext(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
