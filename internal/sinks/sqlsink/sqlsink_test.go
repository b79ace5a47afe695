package sqlsink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ferro-labs/gateway-core/events"
)

func TestSQLiteSink_NotifyListDelete(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("new sqlite sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	evs := []events.Event{
		events.New(events.TypeCatalogChanged, "openai", now.Add(-48*time.Hour), map[string]interface{}{"summary": "1 added"}),
		events.New(events.TypeCircuitOpened, "groq", now.Add(-time.Hour), nil),
		events.New(events.TypeCircuitClosed, "groq", now, nil),
	}
	for _, ev := range evs {
		if err := s.Notify(ctx, ev); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}

	all, err := s.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Type != string(events.TypeCircuitClosed) {
		t.Fatalf("unexpected list %+v", all)
	}

	groq, err := s.List(ctx, "groq", 10)
	if err != nil {
		t.Fatalf("list groq: %v", err)
	}
	if len(groq) != 2 {
		t.Fatalf("groq events = %d, want 2", len(groq))
	}

	openai, _ := s.List(ctx, "openai", 1)
	if len(openai) != 1 || openai[0].Data != `{"summary":"1 added"}` {
		t.Fatalf("openai events = %+v", openai)
	}

	n, err := s.DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
}

func TestInit_Drivers(t *testing.T) {
	s := &Sink{}
	if err := s.Init(map[string]interface{}{"driver": "mysql"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if err := s.Init(map[string]interface{}{"driver": "postgres"}); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if err := s.Init(map[string]interface{}{"dsn": filepath.Join(t.TempDir(), "e.db")}); err != nil {
		t.Fatalf("sqlite init: %v", err)
	}
	_ = s.Close()

	if _, ok := events.GetFactory(Name); !ok {
		t.Error("sql sink not registered")
	}
}
