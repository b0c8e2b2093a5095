package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/inference/echo"
	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts StoreOptions) *Store {
	t.Helper()
	if opts.Factory == nil {
		opts.Factory = echo.NewFactory(0)
	}
	s, err := NewStore(opts)
	require.NoError(t, err)
	return s
}

func TestStore_GeneratedIDsAreDistinct(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		sess, created, err := s.GetOrCreate("")
		require.NoError(t, err)
		require.True(t, created)
		_, dup := seen[sess.ID]
		require.False(t, dup, "duplicate id %s", sess.ID)
		seen[sess.ID] = struct{}{}
	}
	require.Equal(t, 10000, s.Len())
}

func TestStore_GeneratedIDSkipsCollisions(t *testing.T) {
	ids := []string{"a", "a", "b"}
	var i int
	s := newTestStore(t, StoreOptions{NewID: func() string {
		id := ids[i]
		i++
		return id
	}})

	first, _, err := s.GetOrCreate("")
	require.NoError(t, err)
	require.Equal(t, "a", first.ID)

	second, _, err := s.GetOrCreate("")
	require.NoError(t, err)
	require.Equal(t, "b", second.ID)
}

func TestStore_GeneratedIDSkipsTombstones(t *testing.T) {
	ids := []string{"x", "x", "y"}
	var i int
	s := newTestStore(t, StoreOptions{NewID: func() string {
		id := ids[i]
		i++
		return id
	}})
	_, _, err := s.GetOrCreate("")
	require.NoError(t, err)
	require.NoError(t, s.Delete("x"))

	sess, created, err := s.GetOrCreate("")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "y", sess.ID)
}

func TestStore_CallerSuppliedIDReused(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	a, created, err := s.GetOrCreate("abc")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, a.AppendTurn("hi", "hello"))

	b, created, err := s.GetOrCreate("abc")
	require.NoError(t, err)
	require.False(t, created)
	require.Same(t, a, b)
	require.Equal(t, []engine.Message{
		{Role: engine.RoleUser, Content: "hi"},
		{Role: engine.RoleAssistant, Content: "hello"},
	}, b.History())
}

func TestStore_ConcurrentSameIDYieldsOneSession(t *testing.T) {
	var built atomic.Int32
	s := newTestStore(t, StoreOptions{Factory: func() (engine.Engine, error) {
		built.Add(1)
		return echo.New(0), nil
	}})

	const n = 64
	out := make([]*Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, _, err := s.GetOrCreate("shared")
			require.NoError(t, err)
			out[i] = sess
		}(i)
	}
	wg.Wait()
	for _, sess := range out {
		require.Same(t, out[0], sess)
	}
	require.Equal(t, int32(1), built.Load())
}

func TestStore_ConcurrentFreshSessionsDistinct(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	const n = 200
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, created, err := s.GetOrCreate("")
			require.NoError(t, err)
			require.True(t, created)
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Equal(t, n, s.Len())
}

func TestStore_DeleteTombstonesAndIsSticky(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	sess, _, err := s.GetOrCreate("gone")
	require.NoError(t, err)
	require.NoError(t, sess.AppendTurn("q", "a"))

	require.NoError(t, s.Delete("gone"))
	require.Equal(t, StatusTombstoned, sess.Status())
	require.Empty(t, sess.History())
	require.True(t, s.IsTombstoned("gone"))

	_, _, err = s.GetOrCreate("gone")
	require.ErrorIs(t, err, ErrTombstoned)
	require.Equal(t, 0, s.Len())

	require.ErrorIs(t, s.Delete("gone"), ErrNotFound)
	require.ErrorIs(t, sess.AppendTurn("late", "turn"), ErrTombstoned)
}

func TestStore_DeleteUnknownLeavesStoreUntouched(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	_, _, err := s.GetOrCreate("keep")
	require.NoError(t, err)

	require.ErrorIs(t, s.Delete("missing"), ErrNotFound)
	require.Equal(t, 1, s.Len())
	require.Equal(t, 0, s.TombstoneCount())
	require.False(t, s.IsTombstoned("missing"))

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FactoryErrorDoesNotRegister(t *testing.T) {
	s := newTestStore(t, StoreOptions{Factory: func() (engine.Engine, error) {
		return nil, errors.New("no credentials")
	}})
	_, _, err := s.GetOrCreate("x")
	require.Error(t, err)
	require.Equal(t, 0, s.Len())
}

func TestStore_NewEphemeralIsUnregistered(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	sess, err := s.NewEphemeral()
	require.NoError(t, err)
	require.True(t, sess.Ephemeral)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, 0, s.Len())
}

func TestStore_EvictTombstonesOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, StoreOptions{
		TombstoneTTL: time.Hour,
		Now:          func() time.Time { return now },
	})
	_, _, err := s.GetOrCreate("old")
	require.NoError(t, err)
	require.NoError(t, s.Delete("old"))

	require.Equal(t, 0, s.evictTombstonesOnce(now.Add(30*time.Minute)))
	require.True(t, s.IsTombstoned("old"))

	require.Equal(t, 1, s.evictTombstonesOnce(now.Add(2*time.Hour)))
	require.False(t, s.IsTombstoned("old"))
}

func TestStore_ZeroTTLKeepsTombstones(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	_, _, err := s.GetOrCreate("forever")
	require.NoError(t, err)
	require.NoError(t, s.Delete("forever"))

	require.Equal(t, 0, s.evictTombstonesOnce(time.Now().Add(24*365*time.Hour)))
	require.True(t, s.IsTombstoned("forever"))
}

func TestStore_EvictionLoopRuns(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	s.SetEvictionConfig(time.Millisecond, 5*time.Millisecond)
	_, _, err := s.GetOrCreate("t")
	require.NoError(t, err)
	require.NoError(t, s.Delete("t"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartEvictionLoop(ctx)

	require.Eventually(t, func() bool { return !s.IsTombstoned("t") }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_ConcurrentAppendsUnderLock(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	sess, _, err := s.GetOrCreate("")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sess.Lock(context.Background()))
			defer sess.Unlock()
			require.NoError(t, sess.AppendTurn("q", "a"))
		}()
	}
	wg.Wait()
	require.Equal(t, n, sess.Turns())
}

func TestSession_LockHonorsContext(t *testing.T) {
	s := newTestStore(t, StoreOptions{})
	sess, _, err := s.GetOrCreate("")
	require.NoError(t, err)
	require.NoError(t, sess.Lock(context.Background()))
	defer sess.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = sess.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
