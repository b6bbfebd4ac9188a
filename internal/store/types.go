package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("row not found")

// Theme values accepted for a profile
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Dashboard layouts and security levels accepted for user settings
const (
	LayoutGrid = "grid"
	LayoutList = "list"

	SecurityLow    = "low"
	SecurityMedium = "medium"
	SecurityHigh   = "high"
)

// Profile mirrors a row of the profiles table
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  *string   `json:"full_name"`
	AvatarURL *string   `json:"avatar_url"`
	Theme     string    `json:"theme"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings mirrors a row of the user_settings table
type Settings struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	EmailNotifications   bool      `json:"email_notifications"`
	DashboardLayout      string    `json:"dashboard_layout"`
	SecurityLevel        string    `json:"security_level"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ProfileUpdate is a partial profile; nil fields are left untouched
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Theme     *string `json:"theme,omitempty"`
}

// SettingsUpdate is a partial settings row; nil fields are left untouched
type SettingsUpdate struct {
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
	EmailNotifications   *bool   `json:"email_notifications,omitempty"`
	DashboardLayout      *string `json:"dashboard_layout,omitempty"`
	SecurityLevel        *string `json:"security_level,omitempty"`
}

// Store persists profile and settings rows. Writes are last-write-wins.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	InsertProfile(ctx context.Context, p Profile) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, u ProfileUpdate) (*Profile, error)

	GetSettings(ctx context.Context, userID string) (*Settings, error)
	InsertSettings(ctx context.Context, s Settings) (*Settings, error)
	UpdateSettings(ctx context.Context, userID string, u SettingsUpdate) (*Settings, error)
}

// DefaultProfile is the row created lazily for a user without one
func DefaultProfile(userID, email string) Profile {
	return Profile{ID: userID, Email: email, Theme: ThemeSystem}
}

// DefaultSettings is the row created lazily for a user without one
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:               userID,
		NotificationsEnabled: true,
		EmailNotifications:   true,
		DashboardLayout:      LayoutGrid,
		SecurityLevel:        SecurityMedium,
	}
}

// Validate checks the enumerated fields of a profile update
func (u ProfileUpdate) Validate() error {
	if u.Theme != nil && !oneOf(*u.Theme, ThemeLight, ThemeDark, ThemeSystem) {
		return errors.New("theme must be one of light, dark, system")
	}
	return nil
}

// Validate checks the enumerated fields of a settings update
func (u SettingsUpdate) Validate() error {
	if u.DashboardLayout != nil && !oneOf(*u.DashboardLayout, LayoutGrid, LayoutList) {
		return errors.New("dashboard_layout must be one of grid, list")
	}
	if u.SecurityLevel != nil && !oneOf(*u.SecurityLevel, SecurityLow, SecurityMedium, SecurityHigh) {
		return errors.New("security_level must be one of low, medium, high")
	}
	return nil
}

// Apply copies the set fields onto p
func (u ProfileUpdate) Apply(p *Profile) {
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.FullName != nil {
		p.FullName = u.FullName
	}
	if u.AvatarURL != nil {
		p.AvatarURL = u.AvatarURL
	}
	if u.Theme != nil {
		p.Theme = *u.Theme
	}
}

// Apply copies the set fields onto s
func (u SettingsUpdate) Apply(s *Settings) {
	if u.NotificationsEnabled != nil {
		s.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.EmailNotifications != nil {
		s.EmailNotifications = *u.EmailNotifications
	}
	if u.DashboardLayout != nil {
		s.DashboardLayout = *u.DashboardLayout
	}
	if u.SecurityLevel != nil {
		s.SecurityLevel = *u.SecurityLevel
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
