package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Flarenzy/authgate/internal/auth"
	"github.com/google/uuid"
)

const (
	DefaultBuffer = 256
	insertTimeout = 5 * time.Second
)

type RecorderOptions struct {
	Buffer int
	Logger *slog.Logger
	// OnDrop is called for every event discarded because the queue is full.
	OnDrop func()
	Now    func() time.Time
}

// Recorder turns authentication decisions into Events and writes them to a Store
// from a single background worker. Enqueueing never blocks the request path.
type Recorder struct {
	store  Store
	logger *slog.Logger
	onDrop func()
	now    func() time.Time

	mu      sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

var _ auth.Observer = (*Recorder)(nil)

func NewRecorder(store Store, opts RecorderOptions) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is nil")
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Recorder{
		store:  store,
		logger: opts.Logger,
		onDrop: opts.OnDrop,
		now:    opts.Now,
		events: make(chan Event, opts.Buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		if err := r.store.Insert(ctx, event); err != nil {
			r.logger.ErrorContext(ctx, "writing audit event", "request_id", event.RequestID, "outcome", string(event.Outcome), "err", err.Error())
		}
		cancel()
	}
}

func (r *Recorder) enqueue(event Event) {
	event.ID = uuid.New()
	event.OccurredAt = r.now().UTC()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop()
		return
	}
	select {
	case r.events <- event:
	default:
		r.drop()
	}
}

func (r *Recorder) drop() {
	r.dropped.Add(1)
	if r.onDrop != nil {
		r.onDrop()
	}
}

// Dropped returns the number of events discarded so far.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fromDetails(outcome Outcome, details auth.RequestDetails) Event {
	return Event{
		Outcome:    outcome,
		RemoteAddr: details.RemoteAddr,
		RequestID:  details.RequestID,
		Method:     details.Method,
		Path:       details.Path,
	}
}

func (r *Recorder) Preflight(_ context.Context, details auth.RequestDetails) {
	r.enqueue(fromDetails(OutcomePreflight, details))
}

func (r *Recorder) Anonymous(_ context.Context, details auth.RequestDetails, reason error) {
	event := fromDetails(OutcomeAnonymous, details)
	event.Reason = auth.Reason(reason)
	r.enqueue(event)
}

func (r *Recorder) Authenticated(_ context.Context, id auth.Identity) {
	event := fromDetails(OutcomeAuthenticated, id.Details)
	event.Subject = id.Subject
	r.enqueue(event)
}

func (r *Recorder) Retained(_ context.Context, details auth.RequestDetails, existing auth.Identity) {
	event := fromDetails(OutcomeRetained, details)
	event.Subject = existing.Subject
	r.enqueue(event)
}
