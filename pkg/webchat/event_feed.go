package webchat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/petfood-agent/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventFeed consumes lifecycle events from the bus and relays them to
// websocket observers.
type EventFeed struct {
	subscriber message.Subscriber
	topic      string
	pool       *ConnectionPool

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewEventFeed(subscriber message.Subscriber, topic string) *EventFeed {
	if topic == "" {
		topic = events.DefaultTopic
	}
	return &EventFeed{
		subscriber: subscriber,
		topic:      topic,
		pool:       NewConnectionPool(),
	}
}

func (f *EventFeed) Pool() *ConnectionPool { return f.pool }

func (f *EventFeed) Start(ctx context.Context) error {
	if f == nil || f.subscriber == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	ch, err := f.subscriber.Subscribe(runCtx, f.topic)
	if err != nil {
		f.mu.Unlock()
		cancel()
		return err
	}
	f.cancel = cancel
	f.running = true
	f.mu.Unlock()

	go f.consume(ch)
	return nil
}

func (f *EventFeed) Stop() {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = nil
	f.mu.Unlock()
	f.pool.CloseAll()
}

func (f *EventFeed) IsRunning() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *EventFeed) consume(ch <-chan *message.Message) {
	log.Info().Str("component", "webchat").Str("topic", f.topic).Msg("event feed: started")
	for msg := range ch {
		ev, err := events.Decode(msg)
		if err != nil {
			log.Warn().Err(err).Str("component", "webchat").Msg("event feed: failed to decode event")
			msg.Ack()
			continue
		}
		f.pool.Broadcast(ev.SessionID, msg.Payload)
		msg.Ack()
	}
	log.Info().Str("component", "webchat").Str("topic", f.topic).Msg("event feed: stopped")
	f.mu.Lock()
	f.running = false
	f.cancel = nil
	f.mu.Unlock()
}

type feedHello struct {
	Type      string `json:"type"`
	Topic     string `json:"topic"`
	SessionID string `json:"session_id,omitempty"`
}

// Attach registers conn with the feed and blocks until the peer goes away or
// ctx is done.
func (f *EventFeed) Attach(ctx context.Context, conn *websocket.Conn, sessionFilter string) {
	f.pool.Add(conn, sessionFilter)
	defer f.pool.Remove(conn)

	hello, _ := json.Marshal(feedHello{Type: "hello", Topic: f.topic, SessionID: sessionFilter})
	f.pool.SendToOne(conn, hello)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
