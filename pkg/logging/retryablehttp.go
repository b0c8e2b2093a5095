package logging

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Leveled adapts zerolog to retryablehttp.LeveledLogger.
type Leveled struct {
	logger zerolog.Logger
}

var _ retryablehttp.LeveledLogger = Leveled{}

func NewLeveled(logger zerolog.Logger) Leveled {
	return Leveled{logger: logger}
}

func (l Leveled) Error(msg string, kv ...interface{}) { l.logger.Error().Fields(kv).Msg(msg) }
func (l Leveled) Info(msg string, kv ...interface{})  { l.logger.Info().Fields(kv).Msg(msg) }
func (l Leveled) Debug(msg string, kv ...interface{}) { l.logger.Debug().Fields(kv).Msg(msg) }
func (l Leveled) Warn(msg string, kv ...interface{})  { l.logger.Warn().Fields(kv).Msg(msg) }
