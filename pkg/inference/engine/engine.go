// Package engine defines the inference capability consumed by the chat gateway.
//
// An Engine turns a conversation history plus a new user message into a lazy,
// finite, single-pass Stream of text chunks. Engines are constructed by a
// Factory once per conversation and owned by it.
package engine

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Stream yields generated text chunks in order. Recv returns io.EOF once the
// generation completed successfully; any other error is terminal. A Stream is
// not restartable.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Engine produces a chunk stream for a new message given the prior history.
// The history slice is owned by the caller and must not be retained.
type Engine interface {
	Generate(ctx context.Context, history []Message, message string, obs Observer) (Stream, error)
}

// Factory builds a fresh Engine for a new conversation.
type Factory func() (Engine, error)

// Collect drains a stream into a single string and closes it.
func Collect(s Stream) (string, error) {
	if s == nil {
		return "", errors.New("stream is nil")
	}
	defer func() { _ = s.Close() }()

	var sb strings.Builder
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
	}
}

// CloneHistory returns a copy of history that the callee may keep.
func CloneHistory(history []Message) []Message {
	if len(history) == 0 {
		return nil
	}
	return append([]Message(nil), history...)
}

// Tool is a function an engine may let the model call. Call receives the raw
// JSON arguments produced by the model and returns the JSON result.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters json.RawMessage
	Call       func(ctx context.Context, arguments string) (string, error)
}
