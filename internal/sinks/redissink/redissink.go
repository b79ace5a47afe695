// Package redissink publishes events as JSON on a Redis channel and,
// optionally, appends them to a capped Redis list. Register it with a blank
// import:
//
//	_ "github.com/ferro-labs/gateway-core/internal/sinks/redissink"
package redissink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ferro-labs/gateway-core/events"
)

// Name is the registry name of the sink.
const Name = "redis"

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "gateway:events"

func init() {
	events.RegisterFactory(Name, func() events.Sink {
		return &Sink{}
	})
}

// Sink publishes events to Redis.
type Sink struct {
	client  *redis.Client
	channel string
	list    string
	maxLen  int64
}

// Name returns the sink identifier.
func (s *Sink) Name() string { return Name }

// Init connects lazily. Supported keys: "url" (redis://...) or "addr",
// "password", "db", "channel", "list" and "max_len" (list cap, default
// 1000).
func (s *Sink) Init(config map[string]interface{}) error {
	var opts *redis.Options
	if raw, ok := config["url"].(string); ok && raw != "" {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		addr, _ := config["addr"].(string)
		if addr == "" {
			return fmt.Errorf("redis sink requires url or addr")
		}
		password, _ := config["password"].(string)
		opts = &redis.Options{Addr: addr, Password: password, DB: intValue(config["db"], 0)}
	}

	s.channel, _ = config["channel"].(string)
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	s.list, _ = config["list"].(string)
	s.maxLen = int64(intValue(config["max_len"], 1000))
	s.client = redis.NewClient(opts)
	return nil
}

func intValue(v interface{}, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// Channel returns the publish channel.
func (s *Sink) Channel() string { return s.channel }

// Encode returns the wire form of ev.
func Encode(ev events.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Notify publishes ev and appends it to the configured list.
func (s *Sink) Notify(ctx context.Context, ev events.Event) error {
	if s.client == nil {
		return fmt.Errorf("redis sink not initialised")
	}
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if s.list == "" {
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, payload)
	pipe.LPush(ctx, s.list, payload)
	pipe.LTrim(ctx, s.list, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
