package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore(chromem.NewDB(), nil)
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestProfileLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProfile(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := s.InsertProfile(ctx, Profile{ID: "u1", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ThemeSystem, created.Theme)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = s.InsertProfile(ctx, Profile{ID: "u1", Email: "other@example.com"})
	assert.True(t, errors.Is(err, ErrConflict))

	updated, err := s.UpdateProfile(ctx, "u1", ProfileUpdate{FullName: strPtr("Ana Lima"), Theme: strPtr(ThemeDark)})
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", *updated.FullName)
	assert.Equal(t, ThemeDark, updated.Theme)
	assert.Equal(t, "ana@example.com", updated.Email)

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = s.UpdateProfile(ctx, "missing", ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.InsertSettings(ctx, DefaultSettings("u1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.NotificationsEnabled)
	assert.Equal(t, LayoutGrid, created.DashboardLayout)
	assert.Equal(t, SecurityMedium, created.SecurityLevel)

	updated, err := s.UpdateSettings(ctx, "u1", SettingsUpdate{EmailNotifications: boolPtr(false), SecurityLevel: strPtr(SecurityHigh)})
	require.NoError(t, err)
	assert.False(t, updated.EmailNotifications)
	assert.True(t, updated.NotificationsEnabled)
	assert.Equal(t, SecurityHigh, updated.SecurityLevel)
	assert.Equal(t, created.ID, updated.ID)

	_, err = s.InsertSettings(ctx, DefaultSettings("u1"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.InsertProfile(ctx, DefaultProfile("u1", "a@example.com"))
	require.NoError(t, err)
	p.Email = "mutated@example.com"

	got, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestRowsSurviveReload(t *testing.T) {
	db := chromem.NewDB()
	ctx := context.Background()

	first, err := NewChromemStore(db, nil)
	require.NoError(t, err)
	_, err = first.InsertProfile(ctx, DefaultProfile("u1", "a@example.com"))
	require.NoError(t, err)
	_, err = first.InsertProfile(ctx, DefaultProfile("u2", "b@example.com"))
	require.NoError(t, err)
	_, err = first.InsertSettings(ctx, DefaultSettings("u1"))
	require.NoError(t, err)
	_, err = first.InsertAccount(ctx, Account{Email: "A@Example.com", PasswordHash: "hash"})
	require.NoError(t, err)

	second, err := NewChromemStore(db, nil)
	require.NoError(t, err)

	p, err := second.GetProfile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", p.Email)

	_, err = second.GetSettings(ctx, "u1")
	assert.NoError(t, err)

	a, err := second.GetAccount(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", a.PasswordHash)
}

func TestAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.InsertAccount(ctx, Account{Email: " Ops@Example.com ", PasswordHash: "h", FullName: "Ops"})
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", a.Email)
	assert.NotEmpty(t, a.ID)

	_, err = s.InsertAccount(ctx, Account{Email: "OPS@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	byID, err := s.GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Email, byID.Email)

	_, err = s.GetAccount(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetAccountPassword(ctx, a.ID, "h2"))
	changed, err := s.GetAccount(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "h2", changed.PasswordHash)
	assert.ErrorIs(t, s.SetAccountPassword(ctx, "missing", "h3"), ErrNotFound)
}

func TestUpdateValidation(t *testing.T) {
	assert.NoError(t, ProfileUpdate{Theme: strPtr(ThemeLight)}.Validate())
	assert.Error(t, ProfileUpdate{Theme: strPtr("neon")}.Validate())
	assert.NoError(t, SettingsUpdate{DashboardLayout: strPtr(LayoutList)}.Validate())
	assert.Error(t, SettingsUpdate{DashboardLayout: strPtr("masonry")}.Validate())
	assert.Error(t, SettingsUpdate{SecurityLevel: strPtr("paranoid")}.Validate())
	assert.NoError(t, SettingsUpdate{}.Validate())
}
