package webchat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/petfood-agent/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestEventFeed_RelaysFilteredEvents(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer func() { _ = bus.Close() }()

	feed := NewEventFeed(bus, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, feed.Start(ctx))
	require.True(t, feed.IsRunning())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		feed.Attach(r.Context(), conn, r.URL.Query().Get("session_id"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session_id=s2"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(hello), `"hello"`)
	require.Eventually(t, func() bool { return feed.Pool().Count() == 1 }, time.Second, 5*time.Millisecond)

	pub, err := events.NewWatermillPublisher(bus, "")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, events.New(events.TypeSessionCreated, "s1", nil)))
	require.NoError(t, pub.Publish(ctx, events.New(events.TypeSessionEnded, "s2", nil)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	require.Equal(t, "s2", ev.SessionID)
	require.Equal(t, events.TypeSessionEnded, ev.Type)

	feed.Stop()
	require.Eventually(t, func() bool { return feed.Pool().IsEmpty() }, time.Second, 5*time.Millisecond)
}
