package metrics

import (
	"context"

	"github.com/Flarenzy/authgate/internal/auth"
)

// Observer counts authentication decisions in AuthenticationsTotal.
type Observer struct{}

var _ auth.Observer = Observer{}

func (Observer) Preflight(context.Context, auth.RequestDetails) {
	AuthenticationsTotal.WithLabelValues("preflight", auth.Reason(nil)).Inc()
}

func (Observer) Anonymous(_ context.Context, _ auth.RequestDetails, reason error) {
	AuthenticationsTotal.WithLabelValues("anonymous", auth.Reason(reason)).Inc()
}

func (Observer) Authenticated(context.Context, auth.Identity) {
	AuthenticationsTotal.WithLabelValues("authenticated", auth.Reason(nil)).Inc()
}

func (Observer) Retained(context.Context, auth.RequestDetails, auth.Identity) {
	AuthenticationsTotal.WithLabelValues("retained", auth.Reason(nil)).Inc()
}
