package events

import (
	"context"
	"errors"
	"testing"
)

type configurableSink struct {
	name string
	cfg  map[string]interface{}
}

func (s *configurableSink) Name() string { return s.name }
func (s *configurableSink) Init(cfg map[string]interface{}) error {
	if _, bad := cfg["fail"]; bad {
		return errors.New("bad config")
	}
	s.cfg = cfg
	return nil
}
func (s *configurableSink) Notify(context.Context, Event) error { return nil }

func TestRegisterFactory(t *testing.T) {
	defer func() {
		registryMu.Lock()
		delete(sinkRegistry, "mock-sink")
		registryMu.Unlock()
	}()

	RegisterFactory("mock-sink", func() Sink { return &configurableSink{name: "mock-sink"} })

	f, ok := GetFactory("mock-sink")
	if !ok {
		t.Fatal("expected factory to be registered")
	}
	if got := f().Name(); got != "mock-sink" {
		t.Errorf("got name %q, want mock-sink", got)
	}

	found := false
	for _, name := range RegisteredSinks() {
		if name == "mock-sink" {
			found = true
		}
	}
	if !found {
		t.Errorf("RegisteredSinks() = %v, missing mock-sink", RegisteredSinks())
	}
}

func TestBuild(t *testing.T) {
	defer func() {
		registryMu.Lock()
		delete(sinkRegistry, "cfg-sink")
		registryMu.Unlock()
	}()
	RegisterFactory("cfg-sink", func() Sink { return &configurableSink{name: "cfg-sink"} })

	s, err := Build("cfg-sink", map[string]interface{}{"channel": "x"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if s.(*configurableSink).cfg["channel"] != "x" {
		t.Error("config not passed to Init")
	}
	if _, err := Build("cfg-sink", map[string]interface{}{"fail": true}); err == nil {
		t.Error("expected init error")
	}
	if _, err := Build("nonexistent-sink", nil); err == nil {
		t.Error("expected unknown sink error")
	}
}

func TestNewEvent(t *testing.T) {
	a := New(TypeCatalogChanged, "openai", testTime, map[string]interface{}{"summary": "1 added"})
	b := New(TypeCatalogChanged, "openai", testTime, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q and %q must be unique and non-empty", a.ID, b.ID)
	}
	if a.Type != TypeCatalogChanged || a.Provider != "openai" || !a.Timestamp.Equal(testTime) {
		t.Errorf("unexpected event %+v", a)
	}
	if len(Types()) != 7 {
		t.Errorf("Types() = %d entries, want 7", len(Types()))
	}
}
