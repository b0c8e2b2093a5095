package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// Observer receives side-channel notifications from an engine while it
// generates. Engines must tolerate a nil Observer by treating it as NoopObserver.
type Observer interface {
	OnToolCall(ctx context.Context, name string, arguments string)
	OnToolResult(ctx context.Context, name string, err error)
	OnChunk(ctx context.Context, chunk string)
}

// NoopObserver discards every notification.
type NoopObserver struct{}

func (NoopObserver) OnToolCall(context.Context, string, string) {}
func (NoopObserver) OnToolResult(context.Context, string, error) {}
func (NoopObserver) OnChunk(context.Context, string)             {}

// LogObserver writes tool activity to a zerolog logger at debug level.
type LogObserver struct {
	Logger zerolog.Logger
}

func (o LogObserver) OnToolCall(_ context.Context, name string, arguments string) {
	o.Logger.Debug().Str("tool", name).Str("arguments", arguments).Msg("tool call")
}

func (o LogObserver) OnToolResult(_ context.Context, name string, err error) {
	if err != nil {
		o.Logger.Warn().Err(err).Str("tool", name).Msg("tool call failed")
		return
	}
	o.Logger.Debug().Str("tool", name).Msg("tool call finished")
}

func (o LogObserver) OnChunk(context.Context, string) {}

// ObserverOrNoop returns obs, or NoopObserver when obs is nil.
func ObserverOrNoop(obs Observer) Observer {
	if obs == nil {
		return NoopObserver{}
	}
	return obs
}
