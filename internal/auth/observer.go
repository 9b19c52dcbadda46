package auth

import (
	"context"
	"errors"
	"log/slog"
)

// Observer receives one notification per authentication decision. Implementations
// must not block; the authenticator calls them inline on the request path.
type Observer interface {
	Preflight(ctx context.Context, details RequestDetails)
	Anonymous(ctx context.Context, details RequestDetails, reason error)
	Authenticated(ctx context.Context, id Identity)
	Retained(ctx context.Context, details RequestDetails, existing Identity)
}

// Observers fans every notification out to each non-nil member.
type Observers []Observer

func (o Observers) Preflight(ctx context.Context, details RequestDetails) {
	for _, obs := range o {
		if obs != nil {
			obs.Preflight(ctx, details)
		}
	}
}

func (o Observers) Anonymous(ctx context.Context, details RequestDetails, reason error) {
	for _, obs := range o {
		if obs != nil {
			obs.Anonymous(ctx, details, reason)
		}
	}
}

func (o Observers) Authenticated(ctx context.Context, id Identity) {
	for _, obs := range o {
		if obs != nil {
			obs.Authenticated(ctx, id)
		}
	}
}

func (o Observers) Retained(ctx context.Context, details RequestDetails, existing Identity) {
	for _, obs := range o {
		if obs != nil {
			obs.Retained(ctx, details, existing)
		}
	}
}

type logObserver struct {
	logger *slog.Logger
}

// NewLogObserver writes audit lines to logger. Tokens are never logged.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		return Observers{}
	}
	return &logObserver{logger: logger}
}

func (o *logObserver) Preflight(ctx context.Context, details RequestDetails) {
	o.logger.DebugContext(ctx, "preflight request",
		"remote_addr", details.RemoteAddr,
		"request_id", details.RequestID,
		"path", details.Path,
	)
}

func (o *logObserver) Anonymous(ctx context.Context, details RequestDetails, reason error) {
	attrs := []any{
		"remote_addr", details.RemoteAddr,
		"request_id", details.RequestID,
		"method", details.Method,
		"path", details.Path,
		"reason", Reason(reason),
	}
	if reason != nil && !errors.Is(reason, ErrTokenAbsent) {
		o.logger.WarnContext(ctx, "token rejected, continuing as anonymous", append(attrs, "err", reason.Error())...)
		return
	}
	o.logger.InfoContext(ctx, "anonymous request", attrs...)
}

func (o *logObserver) Authenticated(ctx context.Context, id Identity) {
	o.logger.InfoContext(ctx, "request authenticated",
		"subject", id.Subject,
		"remote_addr", id.Details.RemoteAddr,
		"request_id", id.Details.RequestID,
		"method", id.Details.Method,
		"path", id.Details.Path,
	)
}

func (o *logObserver) Retained(ctx context.Context, details RequestDetails, existing Identity) {
	o.logger.InfoContext(ctx, "security context already populated, keeping identity",
		"subject", existing.Subject,
		"remote_addr", details.RemoteAddr,
		"request_id", details.RequestID,
	)
}
