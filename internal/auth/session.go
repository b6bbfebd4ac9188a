package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const sessionName = "sentinel-session"

// cookieSessions mirrors the provider session into a signed cookie
type cookieSessions struct {
	store *sessions.CookieStore
}

func newCookieSessions(secret string, secure bool) *cookieSessions {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &cookieSessions{store: store}
}

// load returns nil when the request carries no usable session cookie
func (c *cookieSessions) load(r *http.Request) *Session {
	sess, err := c.store.Get(r, sessionName)
	if err != nil || sess.IsNew {
		return nil
	}
	access, _ := sess.Values["access_token"].(string)
	if access == "" {
		return nil
	}
	refresh, _ := sess.Values["refresh_token"].(string)
	userID, _ := sess.Values["user_id"].(string)
	email, _ := sess.Values["email"].(string)
	fullName, _ := sess.Values["full_name"].(string)

	session := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         User{ID: userID, Email: email, FullName: fullName},
	}
	if exp, ok := sess.Values["expires_at"].(int64); ok && exp > 0 {
		session.ExpiresAt = time.Unix(exp, 0)
	}
	return session
}

func (c *cookieSessions) save(w http.ResponseWriter, r *http.Request, session *Session) error {
	sess, _ := c.store.Get(r, sessionName)
	sess.Values["access_token"] = session.AccessToken
	sess.Values["refresh_token"] = session.RefreshToken
	sess.Values["user_id"] = session.User.ID
	sess.Values["email"] = session.User.Email
	sess.Values["full_name"] = session.User.FullName
	var exp int64
	if !session.ExpiresAt.IsZero() {
		exp = session.ExpiresAt.Unix()
	}
	sess.Values["expires_at"] = exp
	return sess.Save(r, w)
}

func (c *cookieSessions) clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := c.store.Get(r, sessionName)
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// SaveSession writes session into the response cookie
func (s *Service) SaveSession(w http.ResponseWriter, r *http.Request, session *Session) error {
	return s.sessions.save(w, r, session)
}

// ClearSession deletes the session cookie
func (s *Service) ClearSession(w http.ResponseWriter, r *http.Request) error {
	return s.sessions.clear(w, r)
}

// StoredSession returns the raw cookie session without validating it
func (s *Service) StoredSession(r *http.Request) *Session {
	return s.sessions.load(r)
}
