package chatstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryTurnStore_SaveAndList(t *testing.T) {
	s := NewMemoryTurnStore()
	seed(t, s)

	items, err := s.List(context.Background(), TurnQuery{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "turn-2", items[0].TurnID)

	all, err := s.List(context.Background(), TurnQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "turn-3", all[0].TurnID)
}

func TestOpen_EmptyDSNIsMemory(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	_, ok := s.(*MemoryTurnStore)
	require.True(t, ok)
	require.NoError(t, s.Close())

	s, err = OpenWithMemoryLimit(" ", 5)
	require.NoError(t, err)
	m, ok := s.(*MemoryTurnStore)
	require.True(t, ok)
	require.Equal(t, 5, m.limit)
}

func TestMemoryTurnStore_BoundedDropsOldest(t *testing.T) {
	s := NewBoundedMemoryTurnStore(3)
	ctx := context.Background()
	for i := 1; i <= 10; i++ {
		require.NoError(t, s.Save(ctx, TurnRecord{
			SessionID:   "sess",
			TurnID:      fmt.Sprintf("turn-%d", i),
			Mode:        ModeStateless,
			CreatedAtMs: int64(i),
		}))
	}
	require.Equal(t, 3, s.Len())

	items, err := s.List(ctx, TurnQuery{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "turn-10", items[0].TurnID)
	require.Equal(t, "turn-8", items[2].TurnID)
}

func TestMemoryTurnStore_UpsertDoesNotGrow(t *testing.T) {
	s := NewBoundedMemoryTurnStore(2)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, TurnRecord{SessionID: "s", TurnID: "t", Mode: ModeChat, Response: "a", CreatedAtMs: 100}))
	require.NoError(t, s.Save(ctx, TurnRecord{SessionID: "s", TurnID: "t", Mode: ModeChat, Response: "b", CreatedAtMs: 500}))
	require.Equal(t, 1, s.Len())

	items, err := s.List(ctx, TurnQuery{SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, "b", items[0].Response)
	require.Equal(t, int64(100), items[0].CreatedAtMs)
}

func TestMemoryTurnStore_DeleteSession(t *testing.T) {
	s := NewMemoryTurnStore()
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteSession(ctx, "sess-1"))
	require.Equal(t, 1, s.Len())
	items, err := s.List(ctx, TurnQuery{SessionID: "sess-1"})
	require.NoError(t, err)
	require.Empty(t, items)

	// deleted slots do not count against the limit
	b := NewBoundedMemoryTurnStore(2)
	require.NoError(t, b.Save(ctx, TurnRecord{SessionID: "a", TurnID: "1", Mode: ModeChat, CreatedAtMs: 1}))
	require.NoError(t, b.DeleteSession(ctx, "a"))
	require.NoError(t, b.Save(ctx, TurnRecord{SessionID: "b", TurnID: "1", Mode: ModeChat, CreatedAtMs: 2}))
	require.NoError(t, b.Save(ctx, TurnRecord{SessionID: "b", TurnID: "2", Mode: ModeChat, CreatedAtMs: 3}))
	require.Equal(t, 2, b.Len())
}
