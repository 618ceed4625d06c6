package call

import (
	"context"

	"github.com/rs/zerolog"
)

// EngineHooks lets a media provider adapter follow each session step.
// Errors are logged by the service and never retried.
type EngineHooks interface {
	Initialize(ctx context.Context, s *Session) error
	Join(ctx context.Context, s *Session) error
	SetMedia(ctx context.Context, s *Session) error
	Leave(ctx context.Context, s *Session) error
	Release(ctx context.Context, s *Session) error
}

// LogEngine records the lifecycle at debug level. It is used when no
// provider adapter is configured.
type LogEngine struct {
	logger zerolog.Logger
}

func NewLogEngine(logger zerolog.Logger) *LogEngine {
	return &LogEngine{logger: logger.With().Str("component", "call_engine").Logger()}
}

func (e *LogEngine) log(step string, s *Session) {
	e.logger.Debug().
		Str("step", step).
		Str("session_id", s.ID.String()).
		Str("channel", s.Channel).
		Bool("audio", s.Audio).
		Bool("video", s.Video).
		Msg("call engine")
}

func (e *LogEngine) Initialize(_ context.Context, s *Session) error {
	e.log("initialize", s)
	return nil
}

func (e *LogEngine) Join(_ context.Context, s *Session) error {
	e.log("join", s)
	return nil
}

func (e *LogEngine) SetMedia(_ context.Context, s *Session) error {
	e.log("media", s)
	return nil
}

func (e *LogEngine) Leave(_ context.Context, s *Session) error {
	e.log("leave", s)
	return nil
}

func (e *LogEngine) Release(_ context.Context, s *Session) error {
	e.log("release", s)
	return nil
}
