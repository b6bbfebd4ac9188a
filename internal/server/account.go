package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sentinel/internal/auth"
	apperrors "sentinel/internal/errors"
	"sentinel/internal/store"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.NewValidationError("Invalid request body", map[string]interface{}{"cause": err.Error()})
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName,omitempty"`
}

// sessionView is what the browser learns about a session. The refresh token
// never leaves the cookie.
type sessionView struct {
	Authenticated bool            `json:"authenticated"`
	User          *auth.User      `json:"user,omitempty"`
	AccessToken   string          `json:"access_token,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	Profile       *store.Profile  `json:"profile,omitempty"`
	Settings      *store.Settings `json:"settings,omitempty"`
}

func newSessionView(session *auth.Session, data auth.UserData) sessionView {
	user := session.User
	view := sessionView{
		Authenticated: session.AccessToken != "",
		User:          &user,
		AccessToken:   session.AccessToken,
		Profile:       data.Profile,
		Settings:      data.Settings,
	}
	if !session.ExpiresAt.IsZero() {
		exp := session.ExpiresAt
		view.ExpiresAt = &exp
	}
	return view
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "auth", err)
		return
	}

	session, err := s.auth.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, "auth", err)
		return
	}
	if err := s.auth.SaveSession(w, r, session); err != nil {
		s.fail(w, r, "auth", apperrors.NewInternalError("Failed to save session", err))
		return
	}
	apperrors.SendSuccess(w, newSessionView(session, s.auth.EnsureUserData(r.Context(), session)))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "auth", err)
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		s.fail(w, r, "auth", apperrors.NewValidationError("Email and password are required", nil))
		return
	}

	session, err := s.auth.SignUp(r.Context(), body.Email, body.Password, body.FullName)
	if err != nil {
		s.fail(w, r, "auth", err)
		return
	}

	if session.AccessToken == "" {
		// The provider wants the address confirmed before issuing tokens.
		apperrors.SendSuccessWithStatus(w, http.StatusCreated, map[string]interface{}{
			"authenticated":        false,
			"confirmationRequired": true,
			"user":                 session.User,
		})
		return
	}
	if err := s.auth.SaveSession(w, r, session); err != nil {
		s.fail(w, r, "auth", apperrors.NewInternalError("Failed to save session", err))
		return
	}
	apperrors.SendSuccessWithStatus(w, http.StatusCreated, newSessionView(session, s.auth.EnsureUserData(r.Context(), session)))
}

// handleLogout signs out the cookie session. The cookie is cleared even when
// the provider call fails.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := s.auth.StoredSession(r)
	if err := s.auth.SignOut(r.Context(), session); err != nil {
		s.logger.Warn("Provider sign out failed", zap.Error(err))
	}
	if err := s.auth.ClearSession(w, r); err != nil {
		s.logger.Warn("Failed to clear session cookie", zap.Error(err))
	}
	apperrors.SendSuccess(w, map[string]interface{}{"authenticated": false})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "auth", err)
		return
	}
	if strings.TrimSpace(body.Email) == "" {
		s.fail(w, r, "auth", apperrors.NewValidationError("Email is required", nil))
		return
	}
	if err := s.auth.ResetPassword(r.Context(), body.Email); err != nil {
		s.fail(w, r, "auth", err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"message": "Check your email for the password reset link",
	})
}

// handleResetPassword sets a new password. The access token comes from the
// recovery link on /reset-password, or from the signed-in session.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
		Password    string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.fail(w, r, "auth", err)
		return
	}

	token := strings.TrimSpace(body.AccessToken)
	if token == "" {
		session, err := s.auth.CurrentSession(w, r)
		if err != nil {
			s.fail(w, r, "auth", apperrors.NewUnavailableError("session verification"))
			return
		}
		if session == nil {
			s.fail(w, r, "auth", apperrors.NewAuthenticationError("Reset link is missing or has expired"))
			return
		}
		token = session.AccessToken
	}

	if err := s.auth.UpdatePassword(r.Context(), token, body.Password); err != nil {
		s.fail(w, r, "auth", err)
		return
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"message": "Password updated",
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.auth.CurrentSession(w, r)
	if err != nil {
		s.fail(w, r, "auth", apperrors.NewUnavailableError("session verification"))
		return
	}
	if session == nil {
		apperrors.SendSuccess(w, sessionView{})
		return
	}
	apperrors.SendSuccess(w, newSessionView(session, s.auth.EnsureUserData(r.Context(), session)))
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.GetSessionFromContext(r.Context())
	data := s.auth.EnsureUserData(r.Context(), session)
	if data.Profile == nil {
		s.fail(w, r, "profiles", apperrors.NewNotFoundError("profile"))
		return
	}
	apperrors.SendSuccess(w, data.Profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update store.ProfileUpdate
	if err := decodeBody(w, r, &update); err != nil {
		s.fail(w, r, "profiles", err)
		return
	}
	if err := update.Validate(); err != nil {
		s.fail(w, r, "profiles", apperrors.NewValidationError(err.Error(), nil))
		return
	}

	session, _ := auth.GetSessionFromContext(r.Context())
	profile, err := s.auth.UpdateProfile(r.Context(), session, update)
	if errors.Is(err, store.ErrNotFound) {
		// First write for this user: create the defaults, then apply.
		s.auth.EnsureUserData(r.Context(), session)
		profile, err = s.auth.UpdateProfile(r.Context(), session, update)
	}
	if err != nil {
		s.fail(w, r, "profiles", err)
		return
	}
	apperrors.SendSuccess(w, profile)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.GetSessionFromContext(r.Context())
	data := s.auth.EnsureUserData(r.Context(), session)
	if data.Settings == nil {
		s.fail(w, r, "user_settings", apperrors.NewNotFoundError("settings"))
		return
	}
	apperrors.SendSuccess(w, data.Settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update store.SettingsUpdate
	if err := decodeBody(w, r, &update); err != nil {
		s.fail(w, r, "user_settings", err)
		return
	}
	if err := update.Validate(); err != nil {
		s.fail(w, r, "user_settings", apperrors.NewValidationError(err.Error(), nil))
		return
	}

	session, _ := auth.GetSessionFromContext(r.Context())
	settings, err := s.auth.UpdateSettings(r.Context(), session, update)
	if errors.Is(err, store.ErrNotFound) {
		s.auth.EnsureUserData(r.Context(), session)
		settings, err = s.auth.UpdateSettings(r.Context(), session, update)
	}
	if err != nil {
		s.fail(w, r, "user_settings", err)
		return
	}
	apperrors.SendSuccess(w, settings)
}
