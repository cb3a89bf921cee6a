// Package server provides the HTTP server and WebSocket control surface for
// the recorder.
package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

const (
	sessionCookieName = "capture_session"
	sessionDuration   = 24 * time.Hour
	csrfTokenDuration = 10 * time.Minute
	sweepInterval     = 5 * time.Minute
)

// Credentials returns the username and password currently accepted for login.
type Credentials func() (user, password string)

// grant is an issued token. Login grants remember the credentials they were
// issued under and die when those change.
type grant struct {
	expiresAt time.Time
	creds     [sha256.Size]byte
}

// SessionManager issues login sessions and single-use CSRF tokens for the
// control surface.
type SessionManager struct {
	credentials Credentials
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]grant
	csrf     map[string]time.Time
}

// NewSessionManager returns a manager that checks logins against creds.
func NewSessionManager(creds Credentials) *SessionManager {
	return &SessionManager{
		credentials: creds,
		now:         time.Now,
		sessions:    make(map[string]grant),
		csrf:        make(map[string]time.Time),
	}
}

func fingerprint(user, password string) [sha256.Size]byte {
	return sha256.Sum256([]byte(user + "\x00" + password))
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Valid reports whether token names a live session issued under the current
// credentials. Stale sessions are dropped on sight.
func (sm *SessionManager) Valid(token string) bool {
	if token == "" {
		return false
	}
	current := fingerprint(sm.credentials())

	sm.mu.Lock()
	defer sm.mu.Unlock()
	g, ok := sm.sessions[token]
	if !ok {
		return false
	}
	if sm.now().After(g.expiresAt) || g.creds != current {
		delete(sm.sessions, token)
		return false
	}
	return true
}

// Token returns the session token carried by r, if any.
func Token(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth wraps next so that it only runs with a valid session cookie.
// Unauthenticated requests are redirected to /login.
func (sm *SessionManager) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !sm.Valid(Token(r)) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next(w, r)
	}
}

// Login checks the submitted credentials in constant time and sets a session
// cookie on success.
func (sm *SessionManager) Login(w http.ResponseWriter, r *http.Request, user, password string) bool {
	wantUser, wantPass := sm.credentials()
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass))
	if userOK&passOK != 1 {
		return false
	}

	token, err := newToken()
	if err != nil {
		return false
	}
	sm.mu.Lock()
	sm.sessions[token] = grant{
		expiresAt: sm.now().Add(sessionDuration),
		creds:     fingerprint(wantUser, wantPass),
	}
	sm.mu.Unlock()

	setSessionCookie(w, r, token, int(sessionDuration.Seconds()))
	return true
}

// Logout ends the session carried by r and clears its cookie.
func (sm *SessionManager) Logout(w http.ResponseWriter, r *http.Request) {
	sm.mu.Lock()
	delete(sm.sessions, Token(r))
	sm.mu.Unlock()
	setSessionCookie(w, r, "", -1)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// CreateCSRFToken issues a token for one login form submission. It returns
// "" if no randomness is available, which makes the form fail closed.
func (sm *SessionManager) CreateCSRFToken() string {
	token, err := newToken()
	if err != nil {
		return ""
	}
	sm.mu.Lock()
	sm.csrf[token] = sm.now().Add(csrfTokenDuration)
	sm.mu.Unlock()
	return token
}

// ValidateCSRFToken consumes token and reports whether it was live.
func (sm *SessionManager) ValidateCSRFToken(token string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	expiresAt, ok := sm.csrf[token]
	delete(sm.csrf, token)
	return ok && sm.now().Before(expiresAt)
}

// Sweep drops expired sessions and CSRF tokens and those issued under
// credentials that are no longer configured.
func (sm *SessionManager) Sweep() {
	current := fingerprint(sm.credentials())
	now := sm.now()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for k, g := range sm.sessions {
		if now.After(g.expiresAt) || g.creds != current {
			delete(sm.sessions, k)
		}
	}
	for k, exp := range sm.csrf {
		if now.After(exp) {
			delete(sm.csrf, k)
		}
	}
}

// Run sweeps periodically until ctx is done.
func (sm *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.Sweep()
		}
	}
}
