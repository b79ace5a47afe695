// Package logsink provides a notification sink that writes every event as a
// structured log record. Register it with a blank import:
//
//	_ "github.com/ferro-labs/gateway-core/internal/sinks/logsink"
package logsink

import (
	"context"
	"log/slog"

	"github.com/ferro-labs/gateway-core/events"
	"github.com/ferro-labs/gateway-core/internal/logging"
)

// Name is the registry name of the sink.
const Name = "log"

func init() {
	events.RegisterFactory(Name, func() events.Sink {
		return &Sink{}
	})
}

// Sink logs events.
type Sink struct {
	level  slog.Level
	logger *slog.Logger
}

// Name returns the sink identifier.
func (s *Sink) Name() string { return Name }

// Init configures the sink. Supported keys: "level" (debug, info, warn,
// error; default info).
func (s *Sink) Init(config map[string]interface{}) error {
	s.level = slog.LevelInfo
	if level, ok := config["level"].(string); ok {
		switch level {
		case "debug":
			s.level = slog.LevelDebug
		case "warn":
			s.level = slog.LevelWarn
		case "error":
			s.level = slog.LevelError
		}
	}
	return nil
}

// SetLogger overrides the destination logger.
func (s *Sink) SetLogger(l *slog.Logger) { s.logger = l }

// Notify writes ev as one log record.
func (s *Sink) Notify(ctx context.Context, ev events.Event) error {
	log := s.logger
	if log == nil {
		log = logging.OrDefault(nil)
	}
	attrs := []any{
		"event_id", ev.ID,
		"event", string(ev.Type),
		"provider", ev.Provider,
		"timestamp", ev.Timestamp,
	}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	log.Log(ctx, s.level, "gateway event", attrs...)
	return nil
}
