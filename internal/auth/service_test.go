package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sentinel/internal/store"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret"

// countingStore records how many rows were actually created
type countingStore struct {
	*store.ChromemStore
	profileInserts  atomic.Int32
	settingsInserts atomic.Int32
}

func (c *countingStore) InsertProfile(ctx context.Context, p store.Profile) (*store.Profile, error) {
	row, err := c.ChromemStore.InsertProfile(ctx, p)
	if err == nil {
		c.profileInserts.Add(1)
	}
	return row, err
}

func (c *countingStore) InsertSettings(ctx context.Context, s store.Settings) (*store.Settings, error) {
	row, err := c.ChromemStore.InsertSettings(ctx, s)
	if err == nil {
		c.settingsInserts.Add(1)
	}
	return row, err
}

func newLocalService(t *testing.T) (*Service, *countingStore) {
	t.Helper()
	cs, err := store.NewChromemStore(chromem.NewDB(), nil)
	require.NoError(t, err)
	rows := &countingStore{ChromemStore: cs}

	svc := NewService(Options{
		Provider:      NewLocalProvider(cs, testSecret, nil),
		Store:         rows,
		SessionSecret: testSecret,
		BaseURL:       "http://localhost:3000/",
		CheckTimeout:  time.Second,
	})
	return svc, rows
}

func TestSignUpAndSignIn_Local(t *testing.T) {
	svc, rows := newLocalService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "ana@example.com", "s3cret-pass", "Ana Lima")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "Ana Lima", session.User.FullName)

	profile, err := rows.GetProfile(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", profile.Email)
	assert.Equal(t, store.ThemeSystem, profile.Theme)
	require.NotNil(t, profile.FullName)
	assert.Equal(t, "Ana Lima", *profile.FullName)

	again, err := svc.SignIn(ctx, "ANA@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
	assert.Equal(t, int32(1), rows.profileInserts.Load())
	assert.Equal(t, int32(1), rows.settingsInserts.Load())

	_, err = svc.SignIn(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignUp(ctx, "ana@example.com", "other", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignUp_RejectsPasswordBcryptCannotHash(t *testing.T) {
	svc, _ := newLocalService(t)
	_, err := svc.SignUp(context.Background(), "long@example.com", strings.Repeat("p", maxPasswordBytes+1), "")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = svc.SignUp(context.Background(), "long@example.com", strings.Repeat("p", maxPasswordBytes), "")
	assert.NoError(t, err)
}

func TestUpdatePassword_Local(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	session, err := svc.SignUp(ctx, "rita@example.com", "old-pass", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.UpdatePassword(ctx, "", "new-pass"), ErrNoUser)
	assert.ErrorIs(t, svc.UpdatePassword(ctx, session.AccessToken, ""), ErrInvalidPassword)
	assert.ErrorIs(t, svc.UpdatePassword(ctx, "not-a-jwt", "new-pass"), ErrInvalidToken)

	require.NoError(t, svc.UpdatePassword(ctx, session.AccessToken, "new-pass"))
	_, err = svc.SignIn(ctx, "rita@example.com", "old-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, "rita@example.com", "new-pass")
	assert.NoError(t, err)
}

func TestSignIn_RejectsBlankInput(t *testing.T) {
	svc, _ := newLocalService(t)
	_, err := svc.SignIn(context.Background(), "  ", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureUserData_CreatesDefaultsOnce(t *testing.T) {
	svc, rows := newLocalService(t)
	session := &Session{AccessToken: "x", User: User{ID: "u1", Email: "u1@example.com"}}

	var wg sync.WaitGroup
	results := make([]UserData, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.EnsureUserData(context.Background(), session)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), rows.profileInserts.Load())
	assert.Equal(t, int32(1), rows.settingsInserts.Load())
	for _, data := range results {
		require.NotNil(t, data.Profile)
		require.NotNil(t, data.Settings)
		assert.Equal(t, "u1@example.com", data.Profile.Email)
		assert.True(t, data.Settings.NotificationsEnabled)
		assert.True(t, data.Settings.EmailNotifications)
		assert.Equal(t, store.LayoutGrid, data.Settings.DashboardLayout)
		assert.Equal(t, store.SecurityMedium, data.Settings.SecurityLevel)
	}
}

func TestEnsureUserData_KeepsExistingRows(t *testing.T) {
	svc, rows := newLocalService(t)
	ctx := context.Background()
	dark := store.ThemeDark

	_, err := rows.ChromemStore.InsertProfile(ctx, store.Profile{ID: "u1", Email: "u1@example.com", Theme: dark})
	require.NoError(t, err)

	data := svc.EnsureUserData(ctx, &Session{User: User{ID: "u1", Email: "u1@example.com"}})
	assert.Equal(t, store.ThemeDark, data.Profile.Theme)
	assert.Equal(t, int32(0), rows.profileInserts.Load())
	assert.Equal(t, int32(1), rows.settingsInserts.Load())
}

func TestUpdates_RequireUser(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()

	_, err := svc.UpdateProfile(ctx, nil, store.ProfileUpdate{})
	assert.EqualError(t, err, "No user logged in")
	_, err = svc.UpdateSettings(ctx, &Session{}, store.SettingsUpdate{})
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestUpdates_LastWriteWins(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	session, err := svc.SignUp(ctx, "ops@example.com", "pw-123456", "")
	require.NoError(t, err)

	light, dark := store.ThemeLight, store.ThemeDark
	_, err = svc.UpdateProfile(ctx, session, store.ProfileUpdate{Theme: &light})
	require.NoError(t, err)
	p, err := svc.UpdateProfile(ctx, session, store.ProfileUpdate{Theme: &dark})
	require.NoError(t, err)
	assert.Equal(t, store.ThemeDark, p.Theme)

	bogus := "masonry"
	_, err = svc.UpdateSettings(ctx, session, store.SettingsUpdate{DashboardLayout: &bogus})
	assert.Error(t, err)
}

func TestResolve_RefreshesExpiredSession(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	session, err := svc.SignUp(ctx, "ops@example.com", "pw-123456", "")
	require.NoError(t, err)

	expired := *session
	expired.ExpiresAt = time.Now().Add(-time.Minute)

	next, refreshed, err := svc.Resolve(ctx, &expired)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, session.User.ID, next.User.ID)

	// A second tab still holding the old cookie gets the same session.
	again, refreshed, err := svc.Resolve(ctx, &expired)
	require.NoError(t, err)
	assert.True(t, refreshed)
	require.NotNil(t, again)
	assert.Equal(t, next.AccessToken, again.AccessToken)

	// Past the reuse window the spent token is refused.
	later := time.Now().Add(refreshReuseWindow + time.Second)
	svc.now = func() time.Time { return later }
	gone, _, err := svc.Resolve(ctx, &expired)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestResolve_SignOutForgetsRefreshedSession(t *testing.T) {
	svc, _ := newLocalService(t)
	ctx := context.Background()
	session, err := svc.SignUp(ctx, "out@example.com", "pw-123456", "")
	require.NoError(t, err)

	expired := *session
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	next, _, err := svc.Resolve(ctx, &expired)
	require.NoError(t, err)
	require.NotNil(t, next)

	require.NoError(t, svc.SignOut(ctx, next))
	gone, _, err := svc.Resolve(ctx, &expired)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

// gatedRefresher holds every refresh until release is closed
type gatedRefresher struct {
	Provider
	calls   atomic.Int32
	release chan struct{}
}

func (p *gatedRefresher) Refresh(ctx context.Context, token string) (*Session, error) {
	p.calls.Add(1)
	select {
	case <-p.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.Provider.Refresh(ctx, token)
}

func newGatedService(t *testing.T) (*Service, *gatedRefresher, Session) {
	t.Helper()
	cs, err := store.NewChromemStore(chromem.NewDB(), nil)
	require.NoError(t, err)
	provider := &gatedRefresher{Provider: NewLocalProvider(cs, testSecret, nil), release: make(chan struct{})}
	svc := NewService(Options{Provider: provider, Store: cs, SessionSecret: testSecret, CheckTimeout: time.Second})

	session, err := svc.SignUp(context.Background(), "race@example.com", "pw-123456", "")
	require.NoError(t, err)
	expired := *session
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	return svc, provider, expired
}

func TestResolve_ConcurrentRefreshSharesOneExchange(t *testing.T) {
	svc, provider, expired := newGatedService(t)
	ctx := context.Background()

	const callers = 8
	results := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next, _, err := svc.Resolve(ctx, &expired)
			assert.NoError(t, err)
			results[i] = next
		}(i)
	}

	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(provider.release)
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load())
	for i, next := range results {
		require.NotNil(t, next, "caller %d was signed out", i)
		assert.Equal(t, results[0].AccessToken, next.AccessToken)
	}
}

func TestResolve_TimedOutCallerDoesNotLoseRefresh(t *testing.T) {
	svc, provider, expired := newGatedService(t)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := svc.Resolve(short, &expired)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(provider.release)
	require.Eventually(t, func() bool {
		_, ok := svc.recent.Load(expired.RefreshToken)
		return ok
	}, time.Second, 5*time.Millisecond)

	next, refreshed, err := svc.Resolve(context.Background(), &expired)
	require.NoError(t, err)
	assert.True(t, refreshed)
	require.NotNil(t, next)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestResolve_RejectsGarbageToken(t *testing.T) {
	svc, _ := newLocalService(t)
	session, refreshed, err := svc.Resolve(context.Background(), &Session{AccessToken: "not-a-jwt"})
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Nil(t, session)
}

func TestVerify_LocalJWTSecret(t *testing.T) {
	secret := "backend-jwt-secret"
	svc := NewService(Options{Provider: &stubProvider{}, JWTSecret: secret, SessionSecret: testSecret})

	token, _, err := signToken([]byte(secret), User{ID: "u9", Email: "u9@example.com", FullName: "Nine"}, tokenUseAccess, time.Hour, time.Now())
	require.NoError(t, err)

	user, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)
	assert.Equal(t, "Nine", user.FullName)

	refresh, _, err := signToken([]byte(secret), User{ID: "u9"}, tokenUseRefresh, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, _, err := signToken([]byte("other"), User{ID: "u9"}, tokenUseAccess, time.Hour, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := signToken([]byte(secret), User{ID: "u9"}, tokenUseAccess, -time.Minute, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetPassword_RedirectsToApp(t *testing.T) {
	provider := &stubProvider{}
	svc := NewService(Options{Provider: provider, SessionSecret: testSecret, BaseURL: "https://sentinel.example.com/"})

	require.NoError(t, svc.ResetPassword(context.Background(), " ana@example.com "))
	assert.Equal(t, "ana@example.com", provider.resetEmail)
	assert.Equal(t, "https://sentinel.example.com/reset-password", provider.resetRedirect)

	assert.Error(t, svc.ResetPassword(context.Background(), ""))
}

func TestSignOut_PropagatesProviderError(t *testing.T) {
	provider := &stubProvider{signOutErr: errors.New("boom")}
	svc := NewService(Options{Provider: provider, SessionSecret: testSecret})

	assert.NoError(t, svc.SignOut(context.Background(), nil))
	assert.ErrorContains(t, svc.SignOut(context.Background(), &Session{AccessToken: "t"}), "boom")
}
