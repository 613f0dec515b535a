// Package session keeps logged in users in a signed cookie.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "session"

	// MaxAge is the lifetime of a session in seconds.
	MaxAge = 86400 // One day

	sessionValueUserID    = "user_id"
	sessionValueCreatedAt = "created_at"
)

// ErrSessionNotFound is returned when the request carries no live session.
var ErrSessionNotFound = errors.New("session not found")

// Manager creates, reads and deletes user sessions.
type Manager struct {
	store sessions.Store
}

// NewManager returns a Manager backed by a cookie store signed with
// authKey. Cookies are marked Secure when secure is set.
func NewManager(authKey []byte, secure bool) *Manager {
	store := sessions.NewCookieStore(authKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   MaxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(MaxAge)
	return &Manager{store: store}
}

func (m *Manager) getSession(r *http.Request) (*sessions.Session, error) {
	session, err := m.store.Get(r, CookieName)
	if err != nil {
		// A cookie that fails to decode is treated as no session.
		log.Debugf("Invalid session cookie: %v", err)
		if session == nil {
			return nil, ErrSessionNotFound
		}
		session.IsNew = true
	}
	return session, nil
}

func isExpired(session *sessions.Session) bool {
	createdAt, ok := session.Values[sessionValueCreatedAt].(int64)
	if !ok {
		return true
	}
	return time.Now().Unix() > createdAt+int64(session.Options.MaxAge)
}

// NewSession starts a session for userID and writes the cookie to w.
func (m *Manager) NewSession(w http.ResponseWriter, r *http.Request, userID string) error {
	log.Tracef("NewSession: %v", userID)

	session, err := m.getSession(r)
	if err != nil {
		return err
	}
	session.Values[sessionValueCreatedAt] = time.Now().Unix()
	session.Values[sessionValueUserID] = userID

	log.Debugf("Session created for user %v", userID)
	return m.store.Save(r, w, session)
}

// GetSessionUserID returns the user of the request's session or
// ErrSessionNotFound. An expired session is deleted.
func (m *Manager) GetSessionUserID(w http.ResponseWriter, r *http.Request) (string, error) {
	session, err := m.getSession(r)
	if err != nil {
		return "", err
	}
	if session.IsNew {
		return "", ErrSessionNotFound
	}

	if isExpired(session) {
		log.Debugf("Session is expired")
		session.Options.MaxAge = -1
		if err := m.store.Save(r, w, session); err != nil {
			log.Warnf("Failed to delete expired session: %v", err)
		}
		return "", ErrSessionNotFound
	}

	userID, ok := session.Values[sessionValueUserID].(string)
	if !ok || userID == "" {
		return "", ErrSessionNotFound
	}
	return userID, nil
}

// DelSession deletes the request's session by expiring its cookie.
func (m *Manager) DelSession(w http.ResponseWriter, r *http.Request) error {
	session, err := m.getSession(r)
	if err != nil {
		return err
	}
	if session.IsNew {
		return ErrSessionNotFound
	}

	log.Debugf("Deleting session of user %v", session.Values[sessionValueUserID])
	session.Options.MaxAge = -1
	return m.store.Save(r, w, session)
}
