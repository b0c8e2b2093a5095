package cmds

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/petfood-agent/pkg/config"
	"github.com/go-go-golems/petfood-agent/pkg/persistence/chatstore"
	"github.com/stretchr/testify/require"
)

func echoConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Provider = config.ProviderEcho
	cfg.Events.WebsocketEnabled = true
	return cfg
}

func TestBuildGateway_ChatClientRoundTrip(t *testing.T) {
	g, err := buildGateway(context.Background(), echoConfig(t))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	require.NotNil(t, g.Feed)

	srv := httptest.NewServer(g.Handler)
	t.Cleanup(srv.Close)

	c := &chatClient{baseURL: srv.URL, http: srv.Client()}
	var out bytes.Buffer
	require.NoError(t, c.send(context.Background(), "hi", &out))
	require.NotEmpty(t, c.sessionID)
	require.Contains(t, out.String(), "[Session ID: "+c.sessionID+"]")
	require.Contains(t, out.String(), "You said: hi")

	out.Reset()
	require.NoError(t, c.send(context.Background(), "my dog is 3", &out))
	require.Contains(t, out.String(), "You said: my dog is 3 (earlier: hi)")

	out.Reset()
	require.NoError(t, c.end(context.Background(), &out))
	require.Equal(t, c.sessionID+": session ended\n", out.String())

	out.Reset()
	require.NoError(t, c.send(context.Background(), "again", &out))
	require.Contains(t, out.String(), "has been ended")
	require.NotContains(t, out.String(), "You said")
}

func TestBuildGateway_StatelessClient(t *testing.T) {
	g, err := buildGateway(context.Background(), echoConfig(t))
	require.NoError(t, err)
	t.Cleanup(g.Close)
	srv := httptest.NewServer(g.Handler)
	t.Cleanup(srv.Close)

	c := &chatClient{baseURL: srv.URL, http: srv.Client(), stateless: true}
	var out bytes.Buffer
	require.NoError(t, c.loop(context.Background(), strings.NewReader("one\n\ntwo\n"), &out))
	require.Equal(t, "You said: one\nYou said: two\n", out.String())
	require.Empty(t, c.sessionID)
	require.Equal(t, 0, g.Store.Len())
}

func TestBuildGateway_UnknownProvider(t *testing.T) {
	cfg := echoConfig(t)
	cfg.Engine.Provider = "bedrock"
	_, err := buildGateway(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown engine provider")
}

func TestChatClient_EndRequiresSession(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"chat", "--end"})
	root.SetOut(&bytes.Buffer{})
	require.ErrorContains(t, root.Execute(), "--end requires --session")
}

func TestTurnsList_ReadsSQLiteStore(t *testing.T) {
	dsn, err := chatstore.SQLiteTurnDSNForFile(filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	store, err := chatstore.NewSQLiteTurnStore(dsn)
	require.NoError(t, err)
	for i, id := range []string{"s1", "s2"} {
		require.NoError(t, store.Save(context.Background(), chatstore.TurnRecord{
			SessionID:   id,
			TurnID:      "t1",
			Mode:        chatstore.ModeChat,
			UserMessage: "hi",
			Response:    "You said: hi",
			CreatedAtMs: int64(1000 + i),
		}))
	}
	require.NoError(t, store.Close())

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetArgs([]string{"turns", "list", "--dsn", dsn, "--session", "s2"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "session_id: s2")
	require.NotContains(t, out.String(), "session_id: s1")
}

func TestWriteTurns_Formats(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeTurns(&out, "json", nil))
	require.Equal(t, "[]\n", out.String())

	out.Reset()
	require.NoError(t, writeTurns(&out, "yaml", []chatstore.TurnRecord{{SessionID: "s1", TurnID: "t1"}}))
	require.Contains(t, out.String(), "- session_id: s1")

	require.Error(t, writeTurns(&out, "xml", nil))
}
