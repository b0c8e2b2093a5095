// Package echo provides a deterministic engine for local development and
// tests. It replays the user message and the prior user turns word by word.
package echo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
)

// Engine answers every message with a summary of the conversation so far.
type Engine struct {
	ChunkDelay time.Duration
}

var _ engine.Engine = &Engine{}

func New(chunkDelay time.Duration) *Engine {
	return &Engine{ChunkDelay: chunkDelay}
}

// NewFactory returns a factory producing echo engines.
func NewFactory(chunkDelay time.Duration) engine.Factory {
	return func() (engine.Engine, error) {
		return New(chunkDelay), nil
	}
}

func (e *Engine) Generate(ctx context.Context, history []engine.Message, message string, obs engine.Observer) (engine.Stream, error) {
	reply := Reply(history, message)
	return &stream{
		ctx:    ctx,
		obs:    engine.ObserverOrNoop(obs),
		chunks: splitKeepSpaces(reply),
		delay:  e.ChunkDelay,
	}, nil
}

// Reply builds the text the echo engine generates for message.
func Reply(history []engine.Message, message string) string {
	var prior []string
	for _, m := range history {
		if m.Role == engine.RoleUser {
			prior = append(prior, m.Content)
		}
	}
	if len(prior) == 0 {
		return fmt.Sprintf("You said: %s", message)
	}
	return fmt.Sprintf("You said: %s (earlier: %s)", message, strings.Join(prior, " | "))
}

type stream struct {
	ctx    context.Context
	obs    engine.Observer
	chunks []string
	pos    int
	delay  time.Duration
	closed bool
}

func (s *stream) Recv() (string, error) {
	if s.closed {
		return "", io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-s.ctx.Done():
			t.Stop()
			return "", s.ctx.Err()
		case <-t.C:
		}
	}
	chunk := s.chunks[s.pos]
	s.pos++
	s.obs.OnChunk(s.ctx, chunk)
	return chunk, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}

// splitKeepSpaces splits text into words, keeping the separating space on the
// word that follows it, so concatenating the chunks restores text exactly.
func splitKeepSpaces(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' {
			out = append(out, text[start:i])
			start = i
		}
	}
	return append(out, text[start:])
}
