// Package session owns per-conversation state for the chat gateway: the
// sharded store of active sessions, the sticky tombstones of ended ones and
// the lifecycle rules that decide whether a request may create, reuse or must
// be refused a session.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusTombstoned Status = "tombstoned"
)

var (
	ErrNotFound   = errors.New("session not found")
	ErrTombstoned = errors.New("session has been ended")
)

// Session is one conversation. History is only mutated through AppendTurn,
// and generation against a session is serialized by Lock/Unlock.
type Session struct {
	ID        string
	CreatedAt time.Time
	// Ephemeral sessions are never registered in a Store.
	Ephemeral bool

	eng engine.Engine
	gen *semaphore.Weighted

	mu      sync.Mutex
	status  Status
	history []engine.Message
}

func newSession(id string, eng engine.Engine, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		eng:       eng,
		gen:       semaphore.NewWeighted(1),
		status:    StatusActive,
	}
}

// Engine returns the inference engine owned by this session.
func (s *Session) Engine() engine.Engine { return s.eng }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) IsActive() bool { return s.Status() == StatusActive }

// History returns a copy of the committed turns.
func (s *Session) History() []engine.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return engine.CloneHistory(s.history)
}

// Turns returns the number of committed user/assistant pairs.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

// Lock acquires the generation lock. It returns ctx.Err() if ctx is done
// before the lock becomes available.
func (s *Session) Lock(ctx context.Context) error {
	if err := s.gen.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "acquire generation lock")
	}
	return nil
}

func (s *Session) Unlock() { s.gen.Release(1) }

// AppendTurn commits a completed exchange. It fails with ErrTombstoned when
// the session ended while the turn was being generated.
func (s *Session) AppendTurn(user, assistant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return ErrTombstoned
	}
	s.history = append(s.history,
		engine.Message{Role: engine.RoleUser, Content: user},
		engine.Message{Role: engine.RoleAssistant, Content: assistant},
	)
	return nil
}

// tombstone marks the session ended and drops its history. It reports
// whether this call performed the transition.
func (s *Session) tombstone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusTombstoned {
		return false
	}
	s.status = StatusTombstoned
	s.history = nil
	return true
}
