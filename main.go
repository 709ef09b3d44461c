package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secrets/auth"
	"secrets/config"
	"secrets/crypto"
	"secrets/db"
	"secrets/handlers"
	"secrets/i18n"
	"secrets/logger"

	"github.com/dchest/captcha"
	"github.com/rs/zerolog"
)

// dataKeySalt is fixed so the same DATA_KEY always opens existing rows.
var dataKeySalt = []byte("secrets/data-key/v1")

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "secrets: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	sealer, err := newSealer(cfg.DataKey)
	if err != nil {
		return err
	}

	users := db.NewUserRepository(conn, sealer)
	secrets := db.NewSecretRepository(conn, sealer)
	sessionStore := db.NewSessionRepository(conn)
	db.StartSessionCleaner(ctx, sessionStore, cfg.SessionCleanupInterval.Duration, log)

	sessions := auth.NewSessionManager(auth.SessionConfig{
		Key:    cfg.SessionKey,
		TTL:    cfg.SessionTTL.Duration,
		Secure: cfg.SecureCookies,
	}, sessionStore, users, log)

	// Left nil when disabled; a typed nil would read as enabled.
	var provider auth.Provider
	if cfg.GoogleEnabled {
		provider = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleCallbackURL(),
		})
	}

	bundle, err := i18n.Load()
	if err != nil {
		return fmt.Errorf("load translations: %w", err)
	}

	router, err := handlers.NewRouter(handlers.Deps{
		Config:   cfg,
		Log:      log,
		Auth:     auth.NewService(users, sessions, provider, log, auth.WithMinPasswordLength(cfg.MinPasswordLength)),
		Sessions: sessions,
		Secrets:  secrets,
		DB:       conn,
		I18n:     bundle,
		Captcha:  captcha.NewMemoryStore(captcha.CollectNum, captcha.Expiration),
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return serve(ctx, srv, cfg.ShutdownTimeout.Duration, cfg.AppName, log)
}

func newSealer(dataKey string) (crypto.Sealer, error) {
	if dataKey == "" {
		return crypto.NopSealer{}, nil
	}
	c, err := crypto.NewCipher(crypto.DeriveKey(dataKey, dataKeySalt))
	if err != nil {
		return nil, fmt.Errorf("init data cipher: %w", err)
	}
	return c, nil
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, timeout time.Duration, appName string, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("app", appName).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
