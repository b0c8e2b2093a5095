package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/petfood-agent/pkg/events"
)

func TestWatermillPublisher_RoundTripOverGoChannel(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer func() { _ = ps.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := ps.Subscribe(ctx, events.DefaultTopic)
	require.NoError(t, err)

	pub, err := events.NewWatermillPublisher(ps, "")
	require.NoError(t, err)
	require.Equal(t, events.DefaultTopic, pub.Topic())

	ev := events.New(events.TypeSessionCreated, "s1", map[string]any{"mode": "chat"})
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case msg := <-ch:
		msg.Ack()
		got, err := events.Decode(msg)
		require.NoError(t, err)
		require.Equal(t, ev.ID, got.ID)
		require.Equal(t, events.TypeSessionCreated, got.Type)
		require.Equal(t, "s1", got.SessionID)
		require.Equal(t, "chat", got.Data["mode"])
		require.Equal(t, "s1", msg.Metadata.Get("session_id"))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNewWatermillPublisher_RejectsNil(t *testing.T) {
	_, err := events.NewWatermillPublisher(nil, "x")
	require.Error(t, err)
}
