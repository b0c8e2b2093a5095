// Package events carries session lifecycle notifications over a watermill
// publisher. Events are informational: losing one never affects session state.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultTopic is the watermill topic lifecycle events are published on.
const DefaultTopic = "petfood.sessions"

type Type string

const (
	TypeSessionCreated Type = "session.created"
	TypeSessionEnded   Type = "session.ended"
	TypeTurnCommitted  Type = "turn.committed"
	TypeTurnAborted    Type = "turn.aborted"
)

// Event is the JSON payload of a lifecycle message.
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	TimeMs    int64          `json:"time_ms"`
	Data      map[string]any `json:"data,omitempty"`
}

func New(t Type, sessionID string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		TimeMs:    time.Now().UnixMilli(),
		Data:      data,
	}
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// WatermillPublisher serializes events as JSON watermill messages.
type WatermillPublisher struct {
	pub   message.Publisher
	topic string
}

var _ Publisher = &WatermillPublisher{}

func NewWatermillPublisher(pub message.Publisher, topic string) (*WatermillPublisher, error) {
	if pub == nil {
		return nil, errors.New("events: publisher is nil")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{pub: pub, topic: topic}, nil
}

func (p *WatermillPublisher) Topic() string { return p.topic }

func (p *WatermillPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TimeMs == 0 {
		ev.TimeMs = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "events: marshal")
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("event_type", string(ev.Type))
	msg.Metadata.Set("session_id", ev.SessionID)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return errors.Wrapf(err, "events: publish %s", ev.Type)
	}
	return nil
}

// Decode parses the payload of a watermill message into an Event.
func Decode(msg *message.Message) (Event, error) {
	if msg == nil {
		return Event{}, errors.New("events: message is nil")
	}
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, errors.Wrap(err, "events: decode")
	}
	return ev, nil
}
