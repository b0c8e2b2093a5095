package engine

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	chunks []string
	err    error
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestCollect(t *testing.T) {
	s := &sliceStream{chunks: []string{"a", "b", "c"}}
	out, err := Collect(s)
	require.NoError(t, err)
	require.Equal(t, "abc", out)
	require.True(t, s.closed)

	boom := errors.New("boom")
	s = &sliceStream{chunks: []string{"partial"}, err: boom}
	out, err = Collect(s)
	require.ErrorIs(t, err, boom)
	require.Equal(t, "partial", out)
	require.True(t, s.closed)

	_, err = Collect(nil)
	require.Error(t, err)
}

func TestCloneHistory_IsIndependent(t *testing.T) {
	require.Nil(t, CloneHistory(nil))

	h := []Message{{Role: RoleUser, Content: "hi"}}
	c := CloneHistory(h)
	c[0].Content = "changed"
	require.Equal(t, "hi", h[0].Content)
}

func TestLogObserver_LogsToolActivity(t *testing.T) {
	var buf bytes.Buffer
	obs := ObserverOrNoop(LogObserver{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)})
	obs.OnToolCall(context.Background(), "search_pets", `{"query":"dog"}`)
	obs.OnToolResult(context.Background(), "search_pets", errors.New("timeout"))
	require.Contains(t, buf.String(), `"tool":"search_pets"`)
	require.Contains(t, buf.String(), "tool call failed")

	require.IsType(t, NoopObserver{}, ObserverOrNoop(nil))
}
