package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"secrets/db"
	"secrets/models"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

const SessionName = "secrets-session"

const (
	tokenKey      = "token"
	oauthStateKey = "oauthState"
)

// UserStore is the subset of the user repository the auth layer needs.
type UserStore interface {
	CreateLocal(ctx context.Context, username, passwordHash string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindOrCreateByProviderID(ctx context.Context, providerID string) (models.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, s models.Session) error
	Find(ctx context.Context, token string, now time.Time) (models.Session, error)
	Delete(ctx context.Context, token string) error
}

type SessionConfig struct {
	// Key signs and encrypts the session cookie.
	Key    string
	TTL    time.Duration
	Secure bool
}

// SessionManager binds a browser cookie to a server-side session token and
// resolves it back to a user on every request.
type SessionManager struct {
	cookies  *sessions.CookieStore
	sessions SessionStore
	users    UserStore
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionManager(cfg SessionConfig, store SessionStore, users UserStore, log zerolog.Logger) *SessionManager {
	// Derive two 32-byte keys from the session key
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(cfg.Key + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(cfg.Key + "encryption"))

	cookies := sessions.NewCookieStore(authKey[:], encKey[:])
	cookies.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	// Keeps the codecs' timestamp check in step with the cookie lifetime.
	cookies.MaxAge(int(cfg.TTL.Seconds()))

	return &SessionManager{
		cookies:  cookies,
		sessions: store,
		users:    users,
		ttl:      cfg.TTL,
		log:      log,
		now:      time.Now,
	}
}

// Login moves the browser to the authenticated state. Any token the browser
// already carried is revoked first.
func (m *SessionManager) Login(w http.ResponseWriter, r *http.Request, userID string) error {
	session := m.session(r)
	if old, ok := session.Values[tokenKey].(string); ok && old != "" {
		if err := m.sessions.Delete(r.Context(), old); err != nil {
			m.log.Warn().Err(err).Msg("failed to revoke previous session")
		}
	}

	token, err := generateRandomToken(32)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	err = m.sessions.Create(r.Context(), models.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	session.Values[tokenKey] = token
	delete(session.Values, oauthStateKey)
	return session.Save(r, w)
}

// Logout revokes the server-side token and expires the cookie.
func (m *SessionManager) Logout(w http.ResponseWriter, r *http.Request) error {
	session := m.session(r)
	if token, ok := session.Values[tokenKey].(string); ok && token != "" {
		if err := m.sessions.Delete(r.Context(), token); err != nil {
			return err
		}
	}
	session.Values = map[any]any{}
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Resolve returns the user bound to the request's session. Any failure,
// including a store error, leaves the request anonymous.
func (m *SessionManager) Resolve(r *http.Request) (models.User, bool) {
	session := m.session(r)
	token, _ := session.Values[tokenKey].(string)
	if token == "" {
		return models.User{}, false
	}

	s, err := m.sessions.Find(r.Context(), token, m.now())
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			m.log.Error().Err(err).Msg("failed to load session")
		}
		return models.User{}, false
	}

	user, err := m.users.FindByID(r.Context(), s.UserID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			m.log.Error().Err(err).Str("user_id", s.UserID).Msg("failed to load session user")
		}
		return models.User{}, false
	}
	return user, true
}

func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := m.Resolve(r); ok {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (m *SessionManager) AddFlash(w http.ResponseWriter, r *http.Request, message string) error {
	session := m.session(r)
	session.AddFlash(message)
	return session.Save(r, w)
}

// Flashes returns and clears pending flash messages.
func (m *SessionManager) Flashes(w http.ResponseWriter, r *http.Request) []string {
	session := m.session(r)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear flashes")
	}

	messages := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

func (m *SessionManager) SetOAuthState(w http.ResponseWriter, r *http.Request, state string) error {
	session := m.session(r)
	session.Values[oauthStateKey] = state
	return session.Save(r, w)
}

// PopOAuthState returns the pending state once; a replayed callback finds
// nothing.
func (m *SessionManager) PopOAuthState(w http.ResponseWriter, r *http.Request) string {
	session := m.session(r)
	state, _ := session.Values[oauthStateKey].(string)
	if state == "" {
		return ""
	}
	delete(session.Values, oauthStateKey)
	if err := session.Save(r, w); err != nil {
		m.log.Warn().Err(err).Msg("failed to clear oauth state")
	}
	return state
}

// session never fails: a missing or tampered cookie yields a fresh session.
func (m *SessionManager) session(r *http.Request) *sessions.Session {
	session, err := m.cookies.Get(r, SessionName)
	if err != nil {
		m.log.Debug().Err(err).Msg("discarding unreadable session cookie")
	}
	return session
}

func generateRandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
