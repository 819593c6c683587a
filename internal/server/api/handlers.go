package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avezhov/passport/internal/common"
	"github.com/avezhov/passport/internal/server/models"
	"github.com/gorilla/mux"
)

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", common.ErrorValidation)
	}
	return nil
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, token, err := s.users.SignUp(r.Context(), req.Name, req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, response{
		Status: statusSuccess,
		Token:  token,
		User:   user.Public(),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, token, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, response{
		Status: statusSuccess,
		Token:  token,
		User:   user.Public(),
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, response{Status: statusSuccess})
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.users.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Status:  statusSuccess,
		Message: "token sent to email",
	})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rawToken := mux.Vars(r)["token"]

	user, token, err := s.users.ResetPassword(r.Context(), rawToken, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, response{
		Status: statusSuccess,
		Token:  token,
		User:   user.Public(),
	})
}

func (s *Server) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PasswordCurrent string `json:"passwordCurrent"`
		Password        string `json:"password"`
		PasswordConfirm string `json:"passwordConfirm"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	identity := identityFromContext(r.Context())
	if identity == nil {
		writeError(w, common.ErrorUnauthenticated)
		return
	}

	token, err := s.users.UpdatePassword(r.Context(), identity.User, req.PasswordCurrent, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, err)
		return
	}

	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, response{
		Status: statusSuccess,
		Token:  token,
		User:   identity.User.Public(),
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeError(w, common.ErrorUnauthenticated)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Status: statusSuccess,
		User:   identity.User.Public(),
	})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	all, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	public := make([]*models.PublicUser, 0, len(all))
	for _, u := range all {
		public = append(public, u.Public())
	}

	writeJSON(w, http.StatusOK, response{
		Status: statusSuccess,
		Users:  public,
	})
}
