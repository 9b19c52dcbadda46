package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Flarenzy/authgate/internal/auth"
	"github.com/Flarenzy/authgate/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type API struct {
	Logger *slog.Logger
	Health HealthChecker
	Auth   *auth.Authenticator
}

// NewAPI builds the API. health may be nil when no backing store is configured;
// a nil authenticator is replaced by one that treats every request as anonymous.
func NewAPI(logger *slog.Logger, health HealthChecker, authenticator *auth.Authenticator) *API {
	if logger == nil {
		logger = slog.Default()
	}
	if authenticator == nil {
		// only fails for a nil verifier
		authenticator, _ = auth.NewAuthenticator(auth.AnonymousVerifier{}, auth.Options{
			Observer: auth.NewLogObserver(logger),
		})
	}
	return &API{
		Logger: logger,
		Health: health,
		Auth:   authenticator,
	}
}

func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	mux.HandleFunc("GET /api/v1/session", a.handleSession)
	mux.Handle("GET /api/v1/me", auth.RequireAuthenticated(http.HandlerFunc(a.handleMe)))

	return metrics.Middleware(a.Auth.Middleware(mux))
}
