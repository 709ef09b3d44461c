package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"secrets/db"
	"secrets/models"

	"github.com/rs/zerolog"
)

const maxUsernameLength = 64

// Service verifies local credentials and runs the federated login flow.
type Service struct {
	users    UserStore
	sessions *SessionManager
	provider Provider
	log      zerolog.Logger

	minPasswordLength int
}

type Option func(*Service)

// WithMinPasswordLength rejects shorter passwords, counted in runes. Zero
// only rejects an empty password.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) {
		s.minPasswordLength = n
	}
}

// NewService builds the auth service. A nil provider disables federated login.
func NewService(users UserStore, sessions *SessionManager, provider Provider, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{users: users, sessions: sessions, provider: provider, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return models.User{}, ErrInvalidUsername
	}
	if password == "" || utf8.RuneCountInString(password) < s.minPasswordLength {
		return models.User{}, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateLocal(ctx, username, hash)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateCredential) {
			return models.User{}, ErrDuplicateCredential
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) AuthenticateLocal(ctx context.Context, username, password string) (models.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return models.User{}, err
	}

	// Timing attack mitigation: always check a password
	targetHash := user.PasswordHash
	if err != nil || !user.HasPassword() {
		targetHash = dummyHash()
	}
	match := CheckPasswordHash(password, targetHash)

	if err != nil || !user.HasPassword() || !match {
		return models.User{}, ErrInvalidCredential
	}
	return user, nil
}

func (s *Service) FederatedEnabled() bool {
	return s.provider != nil
}

// BeginFederatedLogin stores a fresh state value in the browser session and
// redirects to the provider's consent page.
func (s *Service) BeginFederatedLogin(w http.ResponseWriter, r *http.Request) error {
	if s.provider == nil {
		return ErrProviderDisabled
	}

	state, err := generateRandomToken(24)
	if err != nil {
		return err
	}
	if err := s.sessions.SetOAuthState(w, r, state); err != nil {
		return err
	}

	http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
	return nil
}

// CompleteFederatedLogin handles the provider callback and returns the local
// user for the provider identity, creating it on first login. Every failure
// wraps ErrProviderAuth.
func (s *Service) CompleteFederatedLogin(w http.ResponseWriter, r *http.Request) (models.User, error) {
	if s.provider == nil {
		return models.User{}, ErrProviderDisabled
	}

	query := r.URL.Query()
	expected := s.sessions.PopOAuthState(w, r)

	if errParam := query.Get("error"); errParam != "" {
		return models.User{}, fmt.Errorf("%w: provider returned %q", ErrProviderAuth, errParam)
	}
	if expected == "" || query.Get("state") != expected {
		return models.User{}, fmt.Errorf("%w: state mismatch", ErrProviderAuth)
	}
	code := query.Get("code")
	if code == "" {
		return models.User{}, fmt.Errorf("%w: missing code", ErrProviderAuth)
	}

	profile, err := s.provider.Profile(r.Context(), code)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrProviderAuth, err)
	}

	user, err := s.users.FindOrCreateByProviderID(r.Context(), profile.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrProviderAuth, err)
	}
	s.log.Debug().Str("user_id", user.ID).Msg("federated login")
	return user, nil
}
