package handlers

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"secrets/auth"
	"secrets/config"
	"secrets/db"
	"secrets/i18n"
	"secrets/models"
	"secrets/web"

	"github.com/dchest/captcha"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog"
)

// MaxSecretLength caps submitted secret text, in runes.
const MaxSecretLength = 1000

const healthTimeout = 2 * time.Second

// Authenticator is the part of auth.Service the handlers drive.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (models.User, error)
	AuthenticateLocal(ctx context.Context, username, password string) (models.User, error)
	FederatedEnabled() bool
	BeginFederatedLogin(w http.ResponseWriter, r *http.Request) error
	CompleteFederatedLogin(w http.ResponseWriter, r *http.Request) (models.User, error)
}

// SecretStore persists secrets and lists them in submission order.
type SecretStore interface {
	CreateForUser(ctx context.Context, userID, text string) (models.Secret, error)
	List(ctx context.Context) ([]models.Secret, error)
}

// Pinger reports whether the database answers; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps is everything the router needs, built once in main.
type Deps struct {
	Config   config.Config
	Log      zerolog.Logger
	Auth     Authenticator
	Sessions *auth.SessionManager
	Secrets  SecretStore
	DB       Pinger
	I18n     *i18n.Bundle

	// Captcha holds issued registration challenges. The captcha package
	// keeps a single process-wide store, so NewRouter installs this one.
	// Nil keeps the package's default in-memory store.
	Captcha captcha.Store
}

// Handler serves the HTML pages and the JSON API.
type Handler struct {
	cfg      config.Config
	log      zerolog.Logger
	auth     Authenticator
	sessions *auth.SessionManager
	secrets  SecretStore
	db       Pinger
	i18n     *i18n.Bundle

	loginLimiter  *rateLimiter
	signupLimiter *rateLimiter
}

// New builds a Handler with fresh login and registration rate limiters.
func New(d Deps) *Handler {
	return &Handler{
		cfg:           d.Config,
		log:           d.Log,
		auth:          d.Auth,
		sessions:      d.Sessions,
		secrets:       d.Secrets,
		db:            d.DB,
		i18n:          d.I18n,
		loginLimiter:  newRateLimiter(),
		signupLimiter: newRateLimiter(),
	}
}

// NewRouter wires every route behind the shared middleware stack.
func NewRouter(d Deps) (http.Handler, error) {
	h := New(d)

	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		return nil, err
	}

	if d.Captcha != nil {
		captcha.SetCustomStore(d.Captcha)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Client-supplied forwarding headers would let anyone dodge the rate
	// limiters, so they are honoured only behind a trusted proxy.
	if d.Config.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware)

	r.NotFound(h.NotFound)
	r.Get("/healthz", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	r.Handle("/captcha/*", captcha.Server(captcha.StdWidth, captcha.StdHeight))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept"},
			MaxAge:         300,
		}))
		r.Get("/secrets", h.APIListSecrets)
	})

	// CSRF key is derived so it never equals the cookie keys
	csrfKey := sha256.Sum256([]byte(d.Config.SessionKey + "csrf"))

	r.Group(func(r chi.Router) {
		if !d.Config.SecureCookies {
			r.Use(plaintextRequests)
		}
		r.Use(csrf.Protect(
			csrfKey[:],
			csrf.Secure(d.Config.SecureCookies),
			csrf.Path("/"),
			csrf.SameSite(csrf.SameSiteLaxMode),
			csrf.ErrorHandler(http.HandlerFunc(h.csrfFailure)),
		))
		r.Use(d.Sessions.Middleware)

		r.Get("/", h.Index)
		r.Get("/register", h.RegisterForm)
		r.Post("/register", h.Register)
		r.Get("/login", h.LoginForm)
		r.Post("/login", h.Login)
		r.Get("/auth/google", h.GoogleLogin)
		r.Get("/auth/google/secrets", h.GoogleCallback)
		r.Get("/secrets", h.Secrets)
		r.Get("/submit", h.SubmitForm)
		r.Post("/submit", h.Submit)
		r.Get("/logout", h.Logout)
	})

	return r, nil
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderTemplate(w, r, http.StatusOK, "home.html", nil)
}

func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"GoogleEnabled":     h.auth.FederatedEnabled(),
		"MinPasswordLength": h.cfg.MinPasswordLength,
	}
	if h.cfg.RegisterCaptcha {
		data["CaptchaID"] = captcha.New()
	}
	h.renderTemplate(w, r, http.StatusOK, "register.html", data)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.signupLimiter.Allow(ip) {
		h.renderError(w, r, http.StatusTooManyRequests, "TooManyAttempts")
		return
	}
	// Every attempt counts, successful ones included
	h.signupLimiter.Record(ip)

	if h.cfg.RegisterCaptcha && !captcha.VerifyString(r.PostFormValue("captcha_id"), r.PostFormValue("captcha_solution")) {
		h.redirectWithFlash(w, r, "/register", "CaptchaFailed")
		return
	}

	user, err := h.auth.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateCredential):
			h.redirectWithFlash(w, r, "/register", "UsernameAlreadyExists")
		case errors.Is(err, auth.ErrWeakPassword):
			h.redirectWithFlash(w, r, "/register", "WeakPassword")
		case errors.Is(err, auth.ErrInvalidUsername):
			h.redirectWithFlash(w, r, "/register", "InvalidUsername")
		default:
			h.serverError(w, r, err)
		}
		return
	}

	h.establish(w, r, user)
}

func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.renderTemplate(w, r, http.StatusOK, "login.html", map[string]any{
		"GoogleEnabled": h.auth.FederatedEnabled(),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if !h.loginLimiter.Allow(ip) {
		h.renderError(w, r, http.StatusTooManyRequests, "TooManyAttempts")
		return
	}

	user, err := h.auth.AuthenticateLocal(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			h.loginLimiter.Record(ip)
			h.redirectWithFlash(w, r, "/login", "InvalidCredentials")
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.loginLimiter.Reset(ip)
	h.establish(w, r, user)
}

func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.auth.FederatedEnabled() {
		h.NotFound(w, r)
		return
	}
	if err := h.auth.BeginFederatedLogin(w, r); err != nil {
		h.serverError(w, r, err)
	}
}

func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.CompleteFederatedLogin(w, r)
	switch {
	case errors.Is(err, auth.ErrProviderDisabled):
		h.NotFound(w, r)
		return
	case errors.Is(err, db.ErrStoreUnavailable):
		h.serverError(w, r, err)
		return
	case err != nil:
		h.log.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("federated login failed")
		h.redirectWithFlash(w, r, "/login", "ProviderLoginFailed")
		return
	}

	h.establish(w, r, user)
}

// Secrets lists every stored secret to every viewer.
func (h *Handler) Secrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := h.secrets.List(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.renderTemplate(w, r, http.StatusOK, "secrets.html", map[string]any{"Secrets": secrets})
}

func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.UserFromContext(r.Context()); !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.renderTemplate(w, r, http.StatusOK, "submit.html", map[string]any{
		"MaxSecretLength": MaxSecretLength,
	})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	text := strings.TrimSpace(r.PostFormValue("secret"))
	switch {
	case text == "":
		h.redirectWithFlash(w, r, "/submit", "SecretRequired")
		return
	case utf8.RuneCountInString(text) > MaxSecretLength:
		h.redirectWithFlash(w, r, "/submit", "SecretTooLong")
		return
	}

	secret, err := h.secrets.CreateForUser(r.Context(), user.ID, text)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// The session outlived its user
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h.serverError(w, r, err)
		return
	}

	h.log.Debug().Str("user_id", user.ID).Str("secret_id", secret.ID).Msg("secret submitted")
	http.Redirect(w, r, "/secrets", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(w, r); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.db.PingContext(ctx); err != nil {
		h.log.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("unavailable"))
		return
	}
	w.Write([]byte("ok"))
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "ErrorNotFound")
}

// establish binds the user to the browser session and lands on /secrets.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, user models.User) {
	if err := h.sessions.Login(w, r, user.ID); err != nil {
		h.serverError(w, r, err)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusSeeOther)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, target, messageKey string) {
	if err := h.sessions.AddFlash(w, r, messageKey); err != nil {
		h.log.Warn().Err(err).Msg("failed to store flash")
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *Handler) csrfFailure(w http.ResponseWriter, r *http.Request) {
	h.log.Warn().
		Err(csrf.FailureReason(r)).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("csrf check failed")
	h.renderError(w, r, http.StatusForbidden, "ErrorForbidden")
}
