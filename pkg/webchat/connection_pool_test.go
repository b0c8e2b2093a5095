package webchat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubConn struct {
	mu     sync.Mutex
	writes [][]byte
	fail   bool
	closed bool
}

func (s *stubConn) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return errors.New("closed")
	}
	s.writes = append(s.writes, append([]byte(nil), data...))
	return nil
}

func (s *stubConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubConn) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestConnectionPool_BroadcastHonorsFilter(t *testing.T) {
	pool := NewConnectionPool()
	all := &stubConn{}
	onlyA := &stubConn{}
	pool.Add(all, "")
	pool.Add(onlyA, "a")

	require.Equal(t, 2, pool.Broadcast("a", []byte("x")))
	require.Equal(t, 1, pool.Broadcast("b", []byte("y")))
	require.Equal(t, 2, all.count())
	require.Equal(t, 1, onlyA.count())
}

func TestConnectionPool_DropsFailedConnections(t *testing.T) {
	pool := NewConnectionPool()
	bad := &stubConn{fail: true}
	good := &stubConn{}
	pool.Add(bad, "")
	pool.Add(good, "")

	pool.Broadcast("s", []byte("x"))
	require.Equal(t, 1, pool.Count())
	require.True(t, bad.closed)
}

func TestConnectionPool_SendToOneAndCloseAll(t *testing.T) {
	pool := NewConnectionPool()
	c := &stubConn{}
	pool.SendToOne(c, []byte("ignored"))
	require.Equal(t, 0, c.count())

	pool.Add(c, "")
	pool.SendToOne(c, []byte("hello"))
	require.Equal(t, 1, c.count())

	pool.CloseAll()
	require.True(t, pool.IsEmpty())
	require.True(t, c.closed)
}
