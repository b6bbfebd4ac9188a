package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "sentinel/internal/errors"

	"go.uber.org/zap"
)

var guardSkipPrefixes = []string{"/static", "/api", "/ws", "/metrics", "/health"}

var publicPrefixes = []string{"/login", "/register", "/forgot-password", "/reset-password"}

func skipGuard(path string) bool {
	if strings.Contains(path, ".") {
		return true
	}
	for _, prefix := range guardSkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isPublic(path string) bool {
	if path == "/" {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAuthPage(path string) bool {
	return strings.HasPrefix(path, "/login") || strings.HasPrefix(path, "/register")
}

type checkResult struct {
	session   *Session
	refreshed bool
	err       error
}

// CurrentSession resolves the cookie session within the check timeout. A
// refreshed session is written back to the cookie.
func (s *Service) CurrentSession(w http.ResponseWriter, r *http.Request) (*Session, error) {
	stored := s.sessions.load(r)
	if stored == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()

	done := make(chan checkResult, 1)
	go func() {
		session, refreshed, err := s.Resolve(ctx, stored)
		done <- checkResult{session: session, refreshed: refreshed, err: err}
	}()

	var result checkResult
	select {
	case result = <-done:
	case <-ctx.Done():
		return nil, errors.New("session check timeout")
	}
	if result.err != nil {
		return nil, result.err
	}

	switch {
	case result.session == nil:
		if err := s.sessions.clear(w, r); err != nil {
			s.logger.Warn("failed to clear session cookie", zap.Error(err))
		}
	case result.refreshed:
		if err := s.sessions.save(w, r, result.session); err != nil {
			s.logger.Warn("failed to save refreshed session", zap.Error(err))
		}
	}
	return result.session, nil
}

// RouteGuard redirects signed-out visitors away from protected pages and
// signed-in users away from the login and register pages. When the session
// check fails or times out the request is let through.
func (s *Service) RouteGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if skipGuard(path) {
			next.ServeHTTP(w, r)
			return
		}

		session, err := s.CurrentSession(w, r)
		if err != nil {
			s.logger.Warn("Middleware error", zap.String("path", path), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		if session == nil && !isPublic(path) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if session != nil && isAuthPage(path) {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}

		if session != nil {
			r = r.WithContext(withSession(r.Context(), session))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIAuth accepts a bearer access token or the session cookie and
// answers 401 JSON otherwise
func (s *Service) RequireAPIAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session, ok := s.bearerSession(r); ok {
			next(w, r.WithContext(withSession(r.Context(), session)))
			return
		}

		session, err := s.CurrentSession(w, r)
		if err != nil {
			s.logger.Warn("API session check failed", zap.String("path", r.URL.Path), zap.Error(err))
			apperrors.SendError(w, apperrors.NewUnavailableError("session verification"))
			return
		}
		if session == nil {
			apperrors.SendError(w, apperrors.NewAuthenticationError("Authentication required"))
			return
		}
		next(w, r.WithContext(withSession(r.Context(), session)))
	}
}

// OptionalAuth attaches the session when there is one and never rejects
func (s *Service) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session, ok := s.bearerSession(r); ok {
			next(w, r.WithContext(withSession(r.Context(), session)))
			return
		}
		if session, err := s.CurrentSession(w, r); err == nil && session != nil {
			r = r.WithContext(withSession(r.Context(), session))
		}
		next(w, r)
	}
}

func (s *Service) bearerSession(r *http.Request) (*Session, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()
	user, err := s.Verify(ctx, token)
	if err != nil {
		s.logger.Debug("bearer token rejected", zap.Error(err))
		return nil, false
	}
	return &Session{AccessToken: token, User: *user}, true
}

func withSession(ctx context.Context, session *Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	user := session.User
	return context.WithValue(ctx, userContextKey, &user)
}

// GetUserFromContext retrieves the user from request context
func GetUserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey).(*User)
	return user, ok
}

// GetSessionFromContext retrieves the session from request context
func GetSessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*Session)
	return session, ok
}
