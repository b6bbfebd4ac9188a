package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// User is the account record returned by the auth API
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Session is an issued token pair
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expiry returns when the access token stops being valid
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	if s.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return time.Time{}
}

type credentials struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

// SignInWithPassword exchanges email and password for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   credentials{Email: email, Password: password},
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SignUp registers an account with full_name metadata. When the backend
// requires email confirmation no tokens are issued and only User is set.
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	var raw struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: credentials{
			Email:    email,
			Password: password,
			Data:     map[string]any{"full_name": fullName},
		},
	}, &raw)
	if err != nil {
		return nil, err
	}

	session := raw.Session
	if session.User.ID == "" {
		session.User.ID = raw.ID
		session.User.Email = raw.Email
	}
	return &session, nil
}

// SignOut revokes the refresh tokens behind accessToken
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		token:  accessToken,
	}, nil)
}

// ResetPasswordForEmail sends a recovery email that links back to redirectTo
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  q,
		body:   map[string]string{"email": email},
	}, nil)
}

// UpdatePassword sets a new password for the user behind accessToken, which
// may be the recovery session from a reset email
func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		token:  accessToken,
		body:   map[string]string{"password": password},
	}, nil)
}

// GetUser resolves an access token to its user
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  accessToken,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RefreshSession trades a refresh token for a new session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var session Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
