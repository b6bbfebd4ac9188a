package auth

import (
	"context"
	"errors"
	"time"

	"sentinel/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoUser             = errors.New("No user logged in")
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailTaken         = errors.New("User already registered")
	ErrInvalidPassword    = errors.New("invalid password")
)

// User is the signed-in identity
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

// Session is the token pair issued by the provider plus its user
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is at or past expiry, allowing skew
func (s *Session) Expired(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// UserData is the profile and settings pair of a user
type UserData struct {
	Profile  *store.Profile  `json:"profile"`
	Settings *store.Settings `json:"settings"`
}

// Provider issues and validates sessions
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp may return a session without tokens when confirmation is pending
	SignUp(ctx context.Context, email, password, fullName string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, accessToken string) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	UpdatePassword(ctx context.Context, accessToken, password string) error
}

type contextKey string

const (
	userContextKey    contextKey = "user"
	sessionContextKey contextKey = "session"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// Claims covers both hosted-backend access tokens and locally issued tokens
type Claims struct {
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	TokenUse     string         `json:"token_use,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) user() *User {
	u := &User{ID: c.Subject, Email: c.Email}
	if name, ok := c.UserMetadata["full_name"].(string); ok {
		u.FullName = name
	}
	return u
}
