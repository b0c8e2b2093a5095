package webchat

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/events"
	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/go-go-golems/petfood-agent/pkg/persistence/chatstore"
	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ChunkStream is the pull interface the transport reads generated output from.
type ChunkStream interface {
	Next() (string, error)
	Close() error
}

type CoordinatorOptions struct {
	Turns  chatstore.TurnStore
	Events events.Publisher
	// Observer is passed to every engine call; NoopObserver when nil.
	Observer engine.Observer
	// GenerationTimeout bounds a single generation; zero means no deadline.
	GenerationTimeout time.Duration
	Logger            *zerolog.Logger
}

// StreamCoordinator runs generations against sessions, one at a time per
// session, and commits completed turns.
type StreamCoordinator struct {
	turns    chatstore.TurnStore
	events   events.Publisher
	observer engine.Observer
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewStreamCoordinator(opts CoordinatorOptions) *StreamCoordinator {
	c := &StreamCoordinator{
		turns:    opts.Turns,
		events:   opts.Events,
		observer: engine.ObserverOrNoop(opts.Observer),
		timeout:  opts.GenerationTimeout,
		logger:   log.With().Str("component", "webchat").Logger(),
	}
	if opts.Logger != nil {
		c.logger = *opts.Logger
	}
	if c.turns == nil {
		c.turns = chatstore.NewMemoryTurnStore()
	}
	if c.events == nil {
		c.events = events.NopPublisher{}
	}
	return c
}

// Open acquires the session's generation lock and starts the engine. The
// returned handle owns the lock until Close.
func (c *StreamCoordinator) Open(ctx context.Context, sess *session.Session, message string) (*StreamHandle, error) {
	if sess == nil {
		return nil, newError(KindInternal, "session is nil", nil)
	}
	if message == "" {
		return nil, ValidationError(msgNoMessage)
	}
	if err := sess.Lock(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, "gave up waiting for session", err)
		}
		return nil, newError(KindInternal, "wait for session", err)
	}
	if !sess.IsActive() {
		sess.Unlock()
		return nil, newError(KindSessionEnded, "session has been ended", session.ErrTombstoned)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	history := sess.History()
	stream, err := sess.Engine().Generate(runCtx, history, message, c.observer)
	if err != nil {
		cancel()
		sess.Unlock()
		return nil, newError(KindUpstreamInference, "start generation", err)
	}

	mode := chatstore.ModeChat
	if sess.Ephemeral {
		mode = chatstore.ModeStateless
	}
	h := &StreamHandle{
		c:       c,
		sess:    sess,
		message: message,
		mode:    mode,
		turnID:  uuid.NewString(),
		parent:  ctx,
		ctx:     runCtx,
		cancel:  cancel,
		stream:  stream,
		started: time.Now(),
	}
	h.logger = c.logger.With().Str("session_id", sess.ID).Str("mode", mode).Str("turn_id", h.turnID).Logger()
	h.logger.Debug().Int("history", len(history)).Msg("generation started")
	return h, nil
}

// ForgetSession drops the recorded turns of an ended session.
func (c *StreamCoordinator) ForgetSession(ctx context.Context, sessionID string) {
	if err := c.turns.DeleteSession(ctx, sessionID); err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("forget session turns failed")
	}
}

// Complete runs a generation to the end and returns the full response.
func (c *StreamCoordinator) Complete(ctx context.Context, sess *session.Session, message string) (string, error) {
	h, err := c.Open(ctx, sess, message)
	if err != nil {
		return "", err
	}
	defer func() { _ = h.Close() }()

	var sb strings.Builder
	for {
		chunk, err := h.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", newError(KindCanceled, "generation cancelled", err)
		}
		sb.WriteString(chunk)
	}
	if h.Err() != nil {
		return "", newError(KindUpstreamInference, "generation failed", h.Err())
	}
	return sb.String(), nil
}

type handleState int

const (
	stateStreaming handleState = iota
	stateFailed
	stateDone
)

// StreamHandle binds one in-flight generation to its session. A handle is not
// safe for concurrent use; the request goroutine that opened it reads and
// closes it.
type StreamHandle struct {
	c       *StreamCoordinator
	sess    *session.Session
	message string
	mode    string
	turnID  string
	logger  zerolog.Logger
	started time.Time

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	stream engine.Stream

	state     handleState
	sb        strings.Builder
	err       error
	committed bool

	closeOnce sync.Once
}

var _ ChunkStream = &StreamHandle{}

// Err returns the engine failure, if the generation failed.
func (h *StreamHandle) Err() error { return h.err }

// Committed reports whether the turn was appended to the session history.
func (h *StreamHandle) Committed() bool { return h.committed }

// Next returns the next chunk. After an engine failure it returns one
// diagnostic chunk and then io.EOF. If the caller's context is cancelled it
// returns the context error and nothing is committed.
func (h *StreamHandle) Next() (string, error) {
	switch h.state {
	case stateFailed, stateDone:
		return "", io.EOF
	}

	chunk, err := h.stream.Recv()
	if err == nil {
		h.sb.WriteString(chunk)
		return chunk, nil
	}
	if errors.Is(err, io.EOF) {
		h.state = stateDone
		h.commit()
		return "", io.EOF
	}
	if perr := h.parent.Err(); perr != nil {
		h.state = stateDone
		h.err = perr
		return "", perr
	}

	h.state = stateFailed
	h.err = err
	h.logger.Warn().Err(err).Msg("generation failed")
	return DiagnosticChunk(err), nil
}

func (h *StreamHandle) commit() {
	response := h.sb.String()
	bg := context.WithoutCancel(h.parent)
	if !h.sess.Ephemeral {
		if err := h.sess.AppendTurn(h.message, response); err != nil {
			h.logger.Info().Err(err).Msg("session ended during generation, turn dropped")
			h.err = err
			return
		}
	}
	h.committed = true

	if err := h.c.turns.Save(bg, chatstore.TurnRecord{
		SessionID:   h.sess.ID,
		TurnID:      h.turnID,
		Mode:        h.mode,
		UserMessage: h.message,
		Response:    response,
		CreatedAtMs: time.Now().UnixMilli(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("record turn failed")
	}
	if !h.sess.Ephemeral && !h.sess.IsActive() {
		// ended between AppendTurn and Save
		h.c.ForgetSession(bg, h.sess.ID)
	}
	h.publish(bg, events.TypeTurnCommitted, map[string]any{
		"turn_id":     h.turnID,
		"mode":        h.mode,
		"turns":       h.sess.Turns(),
		"duration_ms": time.Since(h.started).Milliseconds(),
	})
	h.logger.Debug().Int("bytes", len(response)).Msg("turn committed")
}

func (h *StreamHandle) publish(ctx context.Context, t events.Type, data map[string]any) {
	if err := h.c.events.Publish(ctx, events.New(t, h.sess.ID, data)); err != nil {
		h.logger.Warn().Err(err).Str("event_type", string(t)).Msg("publish event failed")
	}
}

// Close cancels the engine call if still running and releases the session.
func (h *StreamHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		err = h.stream.Close()
		if !h.committed {
			reason := "cancelled"
			if h.err != nil {
				reason = h.err.Error()
			}
			h.publish(context.WithoutCancel(h.parent), events.TypeTurnAborted, map[string]any{
				"turn_id": h.turnID,
				"mode":    h.mode,
				"reason":  reason,
			})
		}
		h.sess.Unlock()
	})
	return err
}
