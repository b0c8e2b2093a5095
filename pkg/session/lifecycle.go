package session

import (
	"context"

	"github.com/go-go-golems/petfood-agent/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EndStatusEnded    = "session ended"
	EndStatusNotFound = "session not found"
)

// Resolution is the outcome of resolving a chat request's session.
type Resolution struct {
	Session *Session
	ID      string
	Created bool
	// Ended is set when the id was tombstoned; Session is nil then.
	Ended bool
}

type EndResult struct {
	Status string `json:"status"`
}

type LifecycleOption func(*Lifecycle)

func WithEventPublisher(p events.Publisher) LifecycleOption {
	return func(l *Lifecycle) {
		if p != nil {
			l.events = p
		}
	}
}

func WithLogger(logger zerolog.Logger) LifecycleOption {
	return func(l *Lifecycle) { l.logger = logger }
}

// Lifecycle applies the create/reuse/end rules on top of a Store.
type Lifecycle struct {
	store  *Store
	events events.Publisher
	logger zerolog.Logger
}

func NewLifecycle(store *Store, opts ...LifecycleOption) (*Lifecycle, error) {
	if store == nil {
		return nil, errors.New("session: store is nil")
	}
	l := &Lifecycle{
		store:  store,
		events: events.NopPublisher{},
		logger: log.With().Str("component", "session").Logger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *Lifecycle) Store() *Store { return l.store }

// ResolveForChat returns the session a chat request continues, creating one
// when id is empty or unknown. A tombstoned id resolves to Ended.
func (l *Lifecycle) ResolveForChat(ctx context.Context, id string) (Resolution, error) {
	sess, created, err := l.store.GetOrCreate(id)
	if errors.Is(err, ErrTombstoned) {
		l.logger.Debug().Str("session_id", id).Msg("request for ended session")
		return Resolution{ID: id, Ended: true}, nil
	}
	if err != nil {
		return Resolution{}, err
	}
	if created {
		l.logger.Info().Str("session_id", sess.ID).Msg("session created")
		l.publish(ctx, events.New(events.TypeSessionCreated, sess.ID, nil))
	}
	return Resolution{Session: sess, ID: sess.ID, Created: created}, nil
}

// End tombstones id. Unknown or already ended ids are a soft result, not an
// error.
func (l *Lifecycle) End(ctx context.Context, id string) (EndResult, error) {
	err := l.store.Delete(id)
	if errors.Is(err, ErrNotFound) {
		return EndResult{Status: EndStatusNotFound}, nil
	}
	if err != nil {
		return EndResult{}, err
	}
	l.logger.Info().Str("session_id", id).Msg("session ended")
	l.publish(ctx, events.New(events.TypeSessionEnded, id, nil))
	return EndResult{Status: EndStatusEnded}, nil
}

// NewEphemeral builds an unregistered session for a stateless request.
func (l *Lifecycle) NewEphemeral(_ context.Context) (*Session, error) {
	return l.store.NewEphemeral()
}

func (l *Lifecycle) publish(ctx context.Context, ev events.Event) {
	if err := l.events.Publish(ctx, ev); err != nil {
		l.logger.Warn().Err(err).Str("session_id", ev.SessionID).Str("event_type", string(ev.Type)).Msg("publish lifecycle event failed")
	}
}
