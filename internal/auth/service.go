package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sentinel/internal/backend"
	"sentinel/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// expirySkew refreshes tokens slightly before they actually expire
	expirySkew = 30 * time.Second
	// refreshReuseWindow is how long requests still carrying a spent refresh
	// token are handed the session it was exchanged for
	refreshReuseWindow = 30 * time.Second
	refreshTimeout     = 10 * time.Second
	// maxPasswordBytes is the most bcrypt will hash
	maxPasswordBytes = 72
)

// Options configures a Service
type Options struct {
	Provider Provider
	Store    store.Store
	// JWTSecret enables local verification of access tokens. When empty every
	// check goes through Provider.GetUser.
	JWTSecret     string
	SessionSecret string
	BaseURL       string
	CheckTimeout  time.Duration
	Logger        *zap.Logger
}

// Service signs users in and out and owns their profile and settings rows
type Service struct {
	provider     Provider
	store        store.Store
	jwtSecret    []byte
	sessions     *cookieSessions
	baseURL      string
	checkTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	refreshes singleflight.Group
	recent    sync.Map // refresh token -> refreshEntry
}

type refreshEntry struct {
	session *Session
	at      time.Time
}

// NewService creates the authentication service
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	s := &Service{
		provider:     opts.Provider,
		store:        opts.Store,
		sessions:     newCookieSessions(opts.SessionSecret, strings.HasPrefix(baseURL, "https://")),
		baseURL:      baseURL,
		checkTimeout: timeout,
		logger:       logger,
		now:          time.Now,
	}
	if opts.JWTSecret != "" {
		s.jwtSecret = []byte(opts.JWTSecret)
	}
	return s
}

// SignIn authenticates with email and password, then makes sure the user's
// profile and settings rows exist. Row failures are logged, never returned.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("🔐 User signed in", zap.String("user_id", session.User.ID))
	s.EnsureUserData(ctx, session)
	return session, nil
}

// SignUp registers an account. The returned session has no access token when
// the provider requires email confirmation first.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	session, err := s.provider.SignUp(ctx, email, password, strings.TrimSpace(fullName))
	if err != nil {
		return nil, err
	}
	if session.AccessToken != "" {
		s.EnsureUserData(ctx, session)
	}
	return session, nil
}

type refreshRevoker interface {
	RevokeRefresh(refreshToken string)
}

// SignOut ends the session with the provider. A nil session is a no-op.
func (s *Service) SignOut(ctx context.Context, session *Session) error {
	if session == nil {
		return nil
	}
	if session.RefreshToken != "" {
		s.forgetRefresh(session.RefreshToken)
		if r, ok := s.provider.(refreshRevoker); ok {
			r.RevokeRefresh(session.RefreshToken)
		}
	}
	if err := s.provider.SignOut(ctx, session.AccessToken); err != nil {
		return fmt.Errorf("sign out failed: %w", err)
	}
	return nil
}

// ResetPassword asks the provider to email a link back to /reset-password
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	return s.provider.ResetPassword(ctx, email, s.baseURL+"/reset-password")
}

// UpdatePassword sets a new password for the user behind accessToken. The
// token is either a signed-in session or the recovery session from a reset
// email.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, password string) error {
	if accessToken == "" {
		return ErrNoUser
	}
	if err := checkPassword(password); err != nil {
		return err
	}
	if err := s.provider.UpdatePassword(ctx, accessToken, password); err != nil {
		return err
	}
	s.logger.Info("🔑 Password updated")
	return nil
}

func checkPassword(password string) error {
	switch {
	case password == "":
		return fmt.Errorf("%w: password is required", ErrInvalidPassword)
	case len(password) > maxPasswordBytes:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidPassword, maxPasswordBytes)
	}
	return nil
}

// Verify resolves an access token to its user
func (s *Service) Verify(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}
	if s.jwtSecret != nil {
		claims, err := parseToken(s.jwtSecret, accessToken, tokenUseAccess)
		if err != nil {
			return nil, err
		}
		return claims.user(), nil
	}
	return s.provider.GetUser(ctx, accessToken)
}

// Resolve validates a stored session, refreshing it when the access token has
// expired. It returns a nil session when the user must sign in again, and
// refreshed=true when the caller should persist the new tokens.
func (s *Service) Resolve(ctx context.Context, session *Session) (current *Session, refreshed bool, err error) {
	if session == nil || session.AccessToken == "" {
		return nil, false, nil
	}

	if session.Expired(s.now(), expirySkew) {
		if session.RefreshToken == "" {
			return nil, false, nil
		}
		next, err := s.refresh(ctx, session.RefreshToken)
		if err != nil {
			if rejected(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		s.logger.Debug("session refreshed", zap.String("user_id", next.User.ID))
		return next, true, nil
	}

	user, err := s.Verify(ctx, session.AccessToken)
	if err != nil {
		if rejected(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	current = &Session{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		User:         *user,
	}
	if current.User.FullName == "" {
		current.User.FullName = session.User.FullName
	}
	return current, false, nil
}

// refresh exchanges a refresh token at most once however many requests race
// on it. The exchange keeps running when the caller gives up, and its result
// is reused by requests that arrive with the same token shortly after.
func (s *Service) refresh(ctx context.Context, token string) (*Session, error) {
	if session, ok := s.recentRefresh(token); ok {
		return session, nil
	}

	ch := s.refreshes.DoChan(token, func() (interface{}, error) {
		if session, ok := s.recentRefresh(token); ok {
			return session, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		next, err := s.provider.Refresh(rctx, token)
		if err != nil {
			return nil, err
		}
		s.pruneRecent()
		s.recent.Store(token, refreshEntry{session: next, at: s.now()})
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		session := *res.Val.(*Session)
		return &session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) recentRefresh(token string) (*Session, bool) {
	v, ok := s.recent.Load(token)
	if !ok {
		return nil, false
	}
	entry := v.(refreshEntry)
	if s.now().Sub(entry.at) > refreshReuseWindow {
		s.recent.Delete(token)
		return nil, false
	}
	session := *entry.session
	return &session, true
}

func (s *Service) pruneRecent() {
	now := s.now()
	s.recent.Range(func(key, v interface{}) bool {
		if now.Sub(v.(refreshEntry).at) > refreshReuseWindow {
			s.recent.Delete(key)
		}
		return true
	})
}

// forgetRefresh drops reuse entries for token and for the tokens that were
// exchanged for it
func (s *Service) forgetRefresh(token string) {
	s.recent.Delete(token)
	s.recent.Range(func(key, v interface{}) bool {
		if v.(refreshEntry).session.RefreshToken == token {
			s.recent.Delete(key)
		}
		return true
	})
}

// rejected separates "this session is no good" from transport trouble
func rejected(err error) bool {
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidCredentials) {
		return true
	}
	var apiErr *backend.Error
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}

func (s *Service) storeContext(ctx context.Context, session *Session) context.Context {
	if session == nil {
		return ctx
	}
	return backend.WithAccessToken(ctx, session.AccessToken)
}

// EnsureUserData fetches the profile and settings in parallel and creates
// whichever is missing with default values. Failures are logged and leave the
// corresponding field nil.
func (s *Service) EnsureUserData(ctx context.Context, session *Session) UserData {
	var data UserData
	if session == nil || session.User.ID == "" || s.store == nil {
		return data
	}
	ctx = s.storeContext(ctx, session)
	userID := session.User.ID

	var (
		wg                     sync.WaitGroup
		profileErr, settingErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		data.Profile, profileErr = s.store.GetProfile(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		data.Settings, settingErr = s.store.GetSettings(ctx, userID)
	}()
	wg.Wait()

	if profileErr != nil {
		data.Profile = s.createProfile(ctx, session, profileErr)
	}
	if settingErr != nil {
		data.Settings = s.createSettings(ctx, userID, settingErr)
	}
	return data
}

func (s *Service) createProfile(ctx context.Context, session *Session, fetchErr error) *store.Profile {
	if !errors.Is(fetchErr, store.ErrNotFound) {
		s.logger.Warn("Error fetching profile", zap.String("user_id", session.User.ID), zap.Error(fetchErr))
	}
	row := store.DefaultProfile(session.User.ID, session.User.Email)
	if session.User.FullName != "" {
		name := session.User.FullName
		row.FullName = &name
	}
	p, err := s.store.InsertProfile(ctx, row)
	if errors.Is(err, store.ErrConflict) {
		// Created concurrently by another request.
		p, err = s.store.GetProfile(ctx, session.User.ID)
	}
	if err != nil {
		s.logger.Error("Error creating profile", zap.String("user_id", session.User.ID), zap.Error(err))
		return nil
	}
	return p
}

func (s *Service) createSettings(ctx context.Context, userID string, fetchErr error) *store.Settings {
	if !errors.Is(fetchErr, store.ErrNotFound) {
		s.logger.Warn("Error fetching settings", zap.String("user_id", userID), zap.Error(fetchErr))
	}
	st, err := s.store.InsertSettings(ctx, store.DefaultSettings(userID))
	if errors.Is(err, store.ErrConflict) {
		st, err = s.store.GetSettings(ctx, userID)
	}
	if err != nil {
		s.logger.Error("Error creating settings", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return st
}

// UpdateProfile applies u to the signed-in user's profile, last write wins
func (s *Service) UpdateProfile(ctx context.Context, session *Session, u store.ProfileUpdate) (*store.Profile, error) {
	if session == nil || session.User.ID == "" {
		return nil, ErrNoUser
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateProfile(s.storeContext(ctx, session), session.User.ID, u)
}

// UpdateSettings applies u to the signed-in user's settings, last write wins
func (s *Service) UpdateSettings(ctx context.Context, session *Session, u store.SettingsUpdate) (*store.Settings, error) {
	if session == nil || session.User.ID == "" {
		return nil, ErrNoUser
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateSettings(s.storeContext(ctx, session), session.User.ID, u)
}
