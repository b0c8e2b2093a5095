package session

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultShards = 32
	// maxIDAttempts bounds id regeneration on collision.
	maxIDAttempts = 16
)

type StoreOptions struct {
	Shards  int
	Factory engine.Factory
	// TombstoneTTL is how long an ended id stays refused. Zero keeps
	// tombstones for the lifetime of the process.
	TombstoneTTL     time.Duration
	EvictionInterval time.Duration
	NewID            func() string
	Now              func() time.Time
}

type shard struct {
	mu         sync.Mutex
	active     map[string]*Session
	tombstones map[string]time.Time
}

// Store maps session ids to sessions. Each id hashes to one shard, so the
// uniqueness and tombstone checks for an id and its creation happen under a
// single shard lock.
type Store struct {
	shards  []*shard
	factory engine.Factory
	newID   func() string
	now     func() time.Time

	evictMu       sync.Mutex
	ttl           time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Factory == nil {
		return nil, errors.New("session: engine factory is nil")
	}
	n := opts.Shards
	if n <= 0 {
		n = DefaultShards
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		shards:        make([]*shard, n),
		factory:       opts.Factory,
		newID:         opts.NewID,
		now:           opts.Now,
		ttl:           opts.TombstoneTTL,
		evictInterval: opts.EvictionInterval,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			active:     map[string]*Session{},
			tombstones: map[string]time.Time{},
		}
	}
	return s, nil
}

func (s *Store) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%uint64(len(s.shards))]
}

// GetOrCreate returns the active session for id, creating it when the id is
// unknown. An empty id gets a freshly generated one. A tombstoned id yields
// ErrTombstoned and is never recreated.
func (s *Store) GetOrCreate(id string) (*Session, bool, error) {
	if id == "" {
		return s.create()
	}
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.tombstones[id]; ok {
		return nil, false, ErrTombstoned
	}
	if sess, ok := sh.active[id]; ok {
		return sess, false, nil
	}
	sess, err := s.newSessionLocked(sh, id)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Store) create() (*Session, bool, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID()
		if id == "" {
			continue
		}
		sh := s.shardFor(id)
		sh.mu.Lock()
		_, isActive := sh.active[id]
		_, isTombstoned := sh.tombstones[id]
		if isActive || isTombstoned {
			sh.mu.Unlock()
			continue
		}
		sess, err := s.newSessionLocked(sh, id)
		sh.mu.Unlock()
		if err != nil {
			return nil, false, err
		}
		return sess, true, nil
	}
	return nil, false, errors.Errorf("session: no unique id after %d attempts", maxIDAttempts)
}

func (s *Store) newSessionLocked(sh *shard, id string) (*Session, error) {
	eng, err := s.factory()
	if err != nil {
		return nil, errors.Wrap(err, "session: build engine")
	}
	sess := newSession(id, eng, s.now())
	sh.active[id] = sess
	return sess, nil
}

// NewEphemeral builds a session that is never registered in the store.
func (s *Store) NewEphemeral() (*Session, error) {
	eng, err := s.factory()
	if err != nil {
		return nil, errors.Wrap(err, "session: build engine")
	}
	sess := newSession(uuid.NewString(), eng, s.now())
	sess.Ephemeral = true
	return sess, nil
}

func (s *Store) Get(id string) (*Session, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Store) IsTombstoned(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.tombstones[id]
	return ok
}

// Delete ends an active session. Unknown and already ended ids return
// ErrNotFound and leave the store untouched.
func (s *Store) Delete(id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sess, ok := sh.active[id]
	if !ok {
		return ErrNotFound
	}
	delete(sh.active, id)
	sh.tombstones[id] = s.now()
	sess.tombstone()
	return nil
}

func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.active)
		sh.mu.Unlock()
	}
	return n
}

func (s *Store) TombstoneCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.tombstones)
		sh.mu.Unlock()
	}
	return n
}
