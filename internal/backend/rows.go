package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"sentinel/internal/store"
)

type tokenKey struct{}

// WithAccessToken attaches the caller's access token to ctx so row requests
// run under that user's row-level policies instead of the anon key.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func accessToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Rows implements store.Store over the backend's row API
type Rows struct {
	client *Client
}

var _ store.Store = (*Rows)(nil)

// Rows returns the row API view of the client
func (c *Client) Rows() *Rows {
	return &Rows{client: c}
}

func eq(column, value string) url.Values {
	return url.Values{column: {"eq." + value}, "select": {"*"}}
}

var representation = map[string]string{"Prefer": "return=representation"}

// selectOne runs a filtered select and returns store.ErrNotFound on no rows
func selectOne[T any](ctx context.Context, c *Client, table string, filter url.Values) (*T, error) {
	var rows []T
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + table,
		query:  filter,
		token:  accessToken(ctx),
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func write[T any](ctx context.Context, c *Client, method, table string, filter url.Values, body any) (*T, error) {
	var rows []T
	err := c.do(ctx, request{
		method:  method,
		path:    "/rest/v1/" + table,
		query:   filter,
		token:   accessToken(ctx),
		body:    body,
		headers: representation,
	}, &rows)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return nil, fmt.Errorf("%s: %w", table, store.ErrConflict)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return &rows[0], nil
}

func (r *Rows) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	return selectOne[store.Profile](ctx, r.client, "profiles", eq("id", userID))
}

func (r *Rows) InsertProfile(ctx context.Context, p store.Profile) (*store.Profile, error) {
	row := map[string]any{"id": p.ID, "email": p.Email, "theme": p.Theme}
	if p.FullName != nil {
		row["full_name"] = *p.FullName
	}
	if p.AvatarURL != nil {
		row["avatar_url"] = *p.AvatarURL
	}
	return write[store.Profile](ctx, r.client, http.MethodPost, "profiles", nil, []any{row})
}

func (r *Rows) UpdateProfile(ctx context.Context, userID string, u store.ProfileUpdate) (*store.Profile, error) {
	return write[store.Profile](ctx, r.client, http.MethodPatch, "profiles", eq("id", userID), u)
}

func (r *Rows) GetSettings(ctx context.Context, userID string) (*store.Settings, error) {
	return selectOne[store.Settings](ctx, r.client, "user_settings", eq("user_id", userID))
}

func (r *Rows) InsertSettings(ctx context.Context, s store.Settings) (*store.Settings, error) {
	row := map[string]any{
		"user_id":               s.UserID,
		"notifications_enabled": s.NotificationsEnabled,
		"email_notifications":   s.EmailNotifications,
		"dashboard_layout":      s.DashboardLayout,
		"security_level":        s.SecurityLevel,
	}
	return write[store.Settings](ctx, r.client, http.MethodPost, "user_settings", nil, []any{row})
}

func (r *Rows) UpdateSettings(ctx context.Context, userID string, u store.SettingsUpdate) (*store.Settings, error) {
	return write[store.Settings](ctx, r.client, http.MethodPatch, "user_settings", eq("user_id", userID), u)
}
