package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

func (s *Store) SetEvictionConfig(ttl, interval time.Duration) {
	if s == nil {
		return
	}
	s.evictMu.Lock()
	s.ttl = ttl
	s.evictInterval = interval
	s.evictMu.Unlock()
}

// StartEvictionLoop drops expired tombstones until ctx is done. It is a no-op
// when the TTL or interval is not positive, or when a loop already runs.
func (s *Store) StartEvictionLoop(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		panic("session: StartEvictionLoop requires non-nil ctx")
	}
	s.evictMu.Lock()
	if s.evictRunning {
		s.evictMu.Unlock()
		return
	}
	ttl := s.ttl
	interval := s.evictInterval
	if ttl <= 0 || interval <= 0 {
		s.evictMu.Unlock()
		return
	}
	s.evictRunning = true
	s.evictMu.Unlock()

	go s.runEvictionLoop(ctx, interval)
}

func (s *Store) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.evictMu.Lock()
			s.evictRunning = false
			s.evictMu.Unlock()
			return
		case now := <-ticker.C:
			if n := s.evictTombstonesOnce(now); n > 0 {
				log.Debug().Str("component", "session").Int("evicted", n).Msg("evicted expired tombstones")
			}
		}
	}
}

func (s *Store) evictTombstonesOnce(now time.Time) int {
	if s == nil {
		return 0
	}
	if now.IsZero() {
		now = s.now()
	}
	s.evictMu.Lock()
	ttl := s.ttl
	s.evictMu.Unlock()
	if ttl <= 0 {
		return 0
	}

	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, at := range sh.tombstones {
			if now.Sub(at) >= ttl {
				delete(sh.tombstones, id)
				evicted++
			}
		}
		sh.mu.Unlock()
	}
	return evicted
}
