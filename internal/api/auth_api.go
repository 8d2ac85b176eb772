package api

import (
	"errors"
	"net/http"
	"strings"

	"skovkrogen/internal/auth"
	"skovkrogen/internal/booking"

	"github.com/rs/zerolog"
)

const minPasswordLength = 6

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// handleLogin exchanges email and password for a session.
// POST /api/auth/login
func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Udfyld email og adgangskode.", string(booking.KindValidation))
		return
	}

	session, err := s.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, session)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Forkert email eller adgangskode.", "invalid_credentials")
	case errors.Is(err, auth.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "Login er ikke tilgængeligt.", "unsupported")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("sign in failed")
		writeError(w, http.StatusBadGateway, booking.MsgGeneric, "auth_unavailable")
	}
}

// handleResetPassword asks the auth provider to mail a reset link.
// POST /api/auth/reset
func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Udfyld email.", string(booking.KindValidation))
		return
	}

	err := s.auth.ResetPasswordForEmail(r.Context(), strings.TrimSpace(req.Email), s.opts.ResetRedirect)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, auth.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "Nulstilling af adgangskode er ikke tilgængelig.", "unsupported")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("password reset failed")
		writeError(w, http.StatusBadGateway, booking.MsgGeneric, "auth_unavailable")
	}
}

// POST /api/auth/logout
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), tokenFrom(r.Context())); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("sign out failed")
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/auth/password
func (s *HTTPServer) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "bad_request")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "Adgangskoden skal være mindst 6 tegn.", string(booking.KindValidation))
		return
	}

	err := s.auth.UpdatePassword(r.Context(), tokenFrom(r.Context()), req.Password)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrUnsupported):
		writeError(w, http.StatusNotImplemented, "Ændring af adgangskode er ikke tilgængelig.", "unsupported")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("password update failed")
		writeError(w, http.StatusBadGateway, booking.MsgGeneric, "auth_unavailable")
	}
}

// GET /api/me
func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewerFrom(r.Context()))
}
