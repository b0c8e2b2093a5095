package echo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
)

func TestEngine_StreamsReplyInOrder(t *testing.T) {
	e := New(0)
	s, err := e.Generate(context.Background(), nil, "hello dog food", nil)
	require.NoError(t, err)

	var chunks []string
	out, err := engine.Collect(&recordingStream{Stream: s, chunks: &chunks})
	require.NoError(t, err)
	require.Equal(t, "You said: hello dog food", out)
	require.Greater(t, len(chunks), 1)
	require.Equal(t, out, strings.Join(chunks, ""))
}

func TestEngine_ReferencesHistory(t *testing.T) {
	history := []engine.Message{
		{Role: engine.RoleUser, Content: "my cat is 12"},
		{Role: engine.RoleAssistant, Content: "noted"},
	}
	out := Reply(history, "what should she eat?")
	require.Contains(t, out, "my cat is 12")
	require.Contains(t, out, "what should she eat?")
}

func TestEngine_HonoursCancellation(t *testing.T) {
	e := New(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := e.Generate(ctx, nil, "a b c d", nil)
	require.NoError(t, err)

	cancel()
	_, err = s.Recv()
	require.ErrorIs(t, err, context.Canceled)
}

type recordingStream struct {
	engine.Stream
	chunks *[]string
}

func (r *recordingStream) Recv() (string, error) {
	c, err := r.Stream.Recv()
	if err == nil {
		*r.chunks = append(*r.chunks, c)
	}
	return c, err
}
