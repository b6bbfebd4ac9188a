package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"sentinel/internal/backend"
	"sentinel/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BackendProvider delegates to the hosted auth API
type BackendProvider struct {
	client *backend.Client
}

func NewBackendProvider(client *backend.Client) *BackendProvider {
	return &BackendProvider{client: client}
}

func (p *BackendProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	s, err := p.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, translate(err)
	}
	return fromBackend(s), nil
}

func (p *BackendProvider) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	s, err := p.client.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, translate(err)
	}
	return fromBackend(s), nil
}

func (p *BackendProvider) SignOut(ctx context.Context, accessToken string) error {
	return p.client.SignOut(ctx, accessToken)
}

func (p *BackendProvider) ResetPassword(ctx context.Context, email, redirectTo string) error {
	return p.client.ResetPasswordForEmail(ctx, email, redirectTo)
}

func (p *BackendProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return translate(p.client.UpdatePassword(ctx, accessToken, password))
}

func (p *BackendProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	u, err := p.client.GetUser(ctx, accessToken)
	if err != nil {
		return nil, translate(err)
	}
	return userFromBackend(*u), nil
}

func (p *BackendProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	s, err := p.client.RefreshSession(ctx, refreshToken)
	if err != nil {
		return nil, translate(err)
	}
	return fromBackend(s), nil
}

func fromBackend(s *backend.Session) *Session {
	session := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         *userFromBackend(s.User),
	}
	if s.AccessToken != "" {
		session.ExpiresAt = s.Expiry()
	}
	return session
}

func userFromBackend(u backend.User) *User {
	user := &User{ID: u.ID, Email: u.Email}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		user.FullName = name
	}
	return user
}

// translate maps backend rejections onto the package's sentinel errors while
// keeping the backend message visible
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *backend.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrInvalidToken, apiErr.Message)
	case http.StatusBadRequest:
		if apiErr.Code == "invalid_grant" {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, apiErr.Message)
		}
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(apiErr.Message), "already registered") {
			return fmt.Errorf("%w: %s", ErrEmailTaken, apiErr.Message)
		}
	}
	return err
}

// AccountStore holds locally registered accounts
type AccountStore interface {
	GetAccount(ctx context.Context, email string) (*store.Account, error)
	GetAccountByID(ctx context.Context, id string) (*store.Account, error)
	InsertAccount(ctx context.Context, a store.Account) (*store.Account, error)
	SetAccountPassword(ctx context.Context, id, passwordHash string) error
}

// LocalProvider issues HS256 tokens for accounts kept in the local store.
// It is used when no hosted backend is configured.
type LocalProvider struct {
	accounts   AccountStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time

	revoked sync.Map // refresh token jti -> expiry
}

func NewLocalProvider(accounts AccountStore, secret string, logger *zap.Logger) *LocalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{
		accounts:   accounts,
		secret:     []byte(secret),
		accessTTL:  time.Hour,
		refreshTTL: 7 * 24 * time.Hour,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := p.accounts.GetAccount(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issue(accountUser(account))
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	account, err := p.accounts.InsertAccount(ctx, store.Account{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	p.logger.Info("👤 Local account registered", zap.String("user_id", account.ID))
	return p.issue(accountUser(account))
}

// SignOut is a no-op for access tokens, which simply expire. Refresh tokens
// are revoked through RevokeRefresh.
func (p *LocalProvider) SignOut(context.Context, string) error {
	return nil
}

// RevokeRefresh prevents a refresh token from being used again
func (p *LocalProvider) RevokeRefresh(refreshToken string) {
	claims, err := parseToken(p.secret, refreshToken, tokenUseRefresh)
	if err != nil {
		return
	}
	p.revoked.Store(claims.ID, claims.ExpiresAt.Time)
}

// ResetPassword has no mail transport locally; the request is logged and
// answered the same way whether or not the account exists.
func (p *LocalProvider) ResetPassword(_ context.Context, email, redirectTo string) error {
	p.logger.Warn("⚠️  Password reset requested but no mail transport is configured",
		zap.String("email", email),
		zap.String("redirect_to", redirectTo))
	return nil
}

// UpdatePassword rehashes the password of the account behind accessToken
func (p *LocalProvider) UpdatePassword(ctx context.Context, accessToken, password string) error {
	claims, err := parseToken(p.secret, accessToken, tokenUseAccess)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = p.accounts.SetAccountPassword(ctx, claims.Subject, string(hash))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return err
	}
	p.logger.Info("🔑 Local account password changed", zap.String("user_id", claims.Subject))
	return nil
}

func (p *LocalProvider) GetUser(ctx context.Context, accessToken string) (*User, error) {
	claims, err := parseToken(p.secret, accessToken, tokenUseAccess)
	if err != nil {
		return nil, err
	}
	account, err := p.accounts.GetAccountByID(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return nil, err
	}
	return accountUser(account), nil
}

func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := parseToken(p.secret, refreshToken, tokenUseRefresh)
	if err != nil {
		return nil, err
	}
	if _, revoked := p.revoked.LoadOrStore(claims.ID, claims.ExpiresAt.Time); revoked {
		return nil, fmt.Errorf("%w: refresh token already used", ErrInvalidToken)
	}
	p.pruneRevoked()

	account, err := p.accounts.GetAccountByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	return p.issue(accountUser(account))
}

func (p *LocalProvider) pruneRevoked() {
	now := p.now()
	p.revoked.Range(func(key, value any) bool {
		if exp, ok := value.(time.Time); ok && now.After(exp) {
			p.revoked.Delete(key)
		}
		return true
	})
}

func (p *LocalProvider) issue(user *User) (*Session, error) {
	now := p.now()
	access, expiresAt, err := signToken(p.secret, *user, tokenUseAccess, p.accessTTL, now)
	if err != nil {
		return nil, err
	}
	refresh, _, err := signToken(p.secret, *user, tokenUseRefresh, p.refreshTTL, now)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         *user,
	}, nil
}

func accountUser(a *store.Account) *User {
	return &User{ID: a.ID, Email: a.Email, FullName: a.FullName}
}
