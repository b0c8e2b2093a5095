package chatstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultMemoryTurnLimit is the number of turns a memory store retains.
const DefaultMemoryTurnLimit = 1024

type turnKey struct {
	sessionID string
	turnID    string
}

// MemoryTurnStore keeps the most recent turns in process memory. Once the
// limit is reached the oldest recorded turn is dropped.
type MemoryTurnStore struct {
	mu    sync.Mutex
	limit int
	index map[turnKey]TurnRecord
	// order is insertion order; keys deleted from index are skipped lazily.
	order []turnKey
}

var _ TurnStore = &MemoryTurnStore{}

func NewMemoryTurnStore() *MemoryTurnStore {
	return NewBoundedMemoryTurnStore(DefaultMemoryTurnLimit)
}

// NewBoundedMemoryTurnStore retains at most limit turns. A non-positive limit
// uses DefaultMemoryTurnLimit.
func NewBoundedMemoryTurnStore(limit int) *MemoryTurnStore {
	if limit <= 0 {
		limit = DefaultMemoryTurnLimit
	}
	return &MemoryTurnStore{
		limit: limit,
		index: make(map[turnKey]TurnRecord, limit),
	}
}

func (s *MemoryTurnStore) Save(_ context.Context, rec TurnRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.CreatedAtMs <= 0 {
		rec.CreatedAtMs = time.Now().UnixMilli()
	}
	k := turnKey{sessionID: rec.SessionID, turnID: rec.TurnID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.index[k]; ok {
		if prev.CreatedAtMs < rec.CreatedAtMs {
			rec.CreatedAtMs = prev.CreatedAtMs
		}
		s.index[k] = rec
		return nil
	}
	s.index[k] = rec
	s.order = append(s.order, k)
	for len(s.index) > s.limit {
		s.evictOldestLocked()
	}
	if len(s.order) > 2*s.limit {
		s.compactLocked()
	}
	return nil
}

func (s *MemoryTurnStore) evictOldestLocked() {
	for len(s.order) > 0 {
		k := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.index[k]; ok {
			delete(s.index, k)
			return
		}
	}
}

func (s *MemoryTurnStore) compactLocked() {
	order := make([]turnKey, 0, len(s.index))
	for _, k := range s.order {
		if _, ok := s.index[k]; ok {
			order = append(order, k)
		}
	}
	s.order = order
}

func (s *MemoryTurnStore) List(_ context.Context, q TurnQuery) ([]TurnRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	sessionID := strings.TrimSpace(q.SessionID)
	mode := strings.TrimSpace(q.Mode)

	s.mu.Lock()
	out := make([]TurnRecord, 0, len(s.index))
	for _, k := range s.order {
		rec, ok := s.index[k]
		if !ok {
			continue
		}
		if sessionID != "" && rec.SessionID != sessionID {
			continue
		}
		if mode != "" && rec.Mode != mode {
			continue
		}
		if q.SinceMs > 0 && rec.CreatedAtMs < q.SinceMs {
			continue
		}
		out = append(out, rec)
	}
	s.mu.Unlock()

	// newest first; insertion order breaks ties
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAtMs > out[j].CreatedAtMs })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteSession drops every turn recorded for sessionID.
func (s *MemoryTurnStore) DeleteSession(_ context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("turn store: sessionID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.index {
		if k.sessionID == sessionID {
			delete(s.index, k)
		}
	}
	s.compactLocked()
	return nil
}

// Len reports the number of retained turns.
func (s *MemoryTurnStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *MemoryTurnStore) Close() error { return nil }

func validateRecord(rec TurnRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("turn store: sessionID is empty")
	}
	if strings.TrimSpace(rec.TurnID) == "" {
		return errors.New("turn store: turnID is empty")
	}
	if strings.TrimSpace(rec.Mode) == "" {
		return errors.New("turn store: mode is empty")
	}
	return nil
}
