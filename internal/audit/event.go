package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeAuthenticated Outcome = "authenticated"
	OutcomeAnonymous     Outcome = "anonymous"
	OutcomeRetained      Outcome = "retained"
	OutcomePreflight     Outcome = "preflight"
)

// Event is one persisted authentication decision.
type Event struct {
	ID         uuid.UUID
	OccurredAt time.Time
	Outcome    Outcome
	Reason     string
	Subject    string
	RemoteAddr string
	RequestID  string
	Method     string
	Path       string
}

type Store interface {
	Insert(ctx context.Context, event Event) error
}
