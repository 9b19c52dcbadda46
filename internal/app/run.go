package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Flarenzy/authgate/internal/audit"
	"github.com/Flarenzy/authgate/internal/auth"
	appdb "github.com/Flarenzy/authgate/internal/db"
	apihttp "github.com/Flarenzy/authgate/internal/http"
	"github.com/Flarenzy/authgate/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c Config) authEnabled() bool {
	return c.AuthEnabled || c.Secret != "" || c.JWKSURL != ""
}

// newAuthenticator always returns an authenticator. With auth disabled it still
// writes CORS headers, answers pre-flight and attaches a security context, but
// every request stays anonymous.
func newAuthenticator(ctx context.Context, cfg Config, observer auth.Observer) (*auth.Authenticator, error) {
	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resolver, err := auth.NewClientIPResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	return auth.NewAuthenticator(verifier, auth.Options{
		Extractor: auth.TokenExtractor{
			Header:     cfg.TokenHeader,
			Scheme:     cfg.TokenScheme,
			QueryParam: cfg.TokenQueryParam,
		},
		Observer:             observer,
		ClientIP:             resolver,
		PreflightPassthrough: cfg.PreflightPassthrough,
	})
}

func newVerifier(ctx context.Context, cfg Config) (auth.Verifier, error) {
	if !cfg.authEnabled() {
		return auth.AnonymousVerifier{}, nil
	}

	verifierCfg := auth.VerifierConfig{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   cfg.Leeway,
	}

	switch {
	case cfg.Secret != "":
		return auth.NewSecretVerifier(ctx, []byte(cfg.Secret), cfg.KeyID, verifierCfg)
	case cfg.jwksURL() != "":
		return auth.NewJWKSVerifier(ctx, cfg.jwksURL(), verifierCfg)
	default:
		return nil, errors.New("auth enabled but issuer is empty")
	}
}

// Serve runs the API on listener until ctx is cancelled.
func Serve(ctx context.Context, cfg Config, listener net.Listener) (retErr error) {
	logger := newLogger(cfg, os.Stderr)

	observers := auth.Observers{auth.NewLogObserver(logger), metrics.Observer{}}

	var health apihttp.HealthChecker
	if cfg.DSN != "" {
		pool, err := appdb.NewPool(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		health = pool

		recorder, err := audit.NewRecorder(appdb.NewAuthEventRepository(pool), audit.RecorderOptions{
			Buffer: cfg.AuditBuffer,
			Logger: logger,
			OnDrop: metrics.AuditEventsDroppedTotal.Inc,
		})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			retErr = errors.Join(retErr, recorder.Close(closeCtx))
		}()
		observers = append(observers, recorder)
	}

	authenticator, err := newAuthenticator(ctx, cfg, observers)
	if err != nil {
		return err
	}
	if cfg.authEnabled() {
		logger.Info("auth enabled", "issuer", cfg.Issuer, "audience", cfg.Audience)
	} else {
		logger.Warn("auth disabled; every request is anonymous")
	}

	api := apihttp.NewAPI(logger, health, authenticator)

	server := &http.Server{
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func Run(ctx context.Context, cfg Config) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}
	return Serve(ctx, cfg, listener)
}
