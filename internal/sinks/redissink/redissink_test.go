package redissink

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/ferro-labs/gateway-core/events"
)

func TestInit(t *testing.T) {
	s := &Sink{}
	if err := s.Init(map[string]interface{}{}); err == nil {
		t.Fatal("expected error without url or addr")
	}
	if err := s.Init(map[string]interface{}{"url": "://bad"}); err == nil {
		t.Fatal("expected url parse error")
	}
	if err := s.Init(map[string]interface{}{"url": "redis://localhost:6379/2", "channel": "ops"}); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	defer s.Close()
	if s.Channel() != "ops" {
		t.Errorf("channel = %q, want ops", s.Channel())
	}

	d := &Sink{}
	if err := d.Init(map[string]interface{}{"addr": "localhost:6379", "max_len": float64(10)}); err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.Channel() != DefaultChannel || d.maxLen != 10 {
		t.Errorf("defaults not applied: channel=%q max_len=%d", d.Channel(), d.maxLen)
	}
}

func TestEncode(t *testing.T) {
	ev := events.New(events.TypeRateLimitHit, "openai", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), map[string]interface{}{"hits": 2})
	b, err := Encode(ev)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "rate_limit_hit" || decoded["provider"] != "openai" || decoded["id"] != ev.ID {
		t.Errorf("unexpected payload %s", b)
	}
}

func TestNotify_UnreachableServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	s := &Sink{}
	if err := s.Init(map[string]interface{}{"addr": addr}); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Notify(ctx, events.New(events.TypeCircuitOpened, "groq", time.Now(), nil)); err == nil {
		t.Fatal("expected publish error against a closed port")
	}

	var uninit Sink
	if err := uninit.Notify(ctx, events.Event{}); err == nil {
		t.Fatal("expected error from uninitialised sink")
	}
}
