package providers

import (
	"context"
	"errors"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewStatic("b", nil)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := r.Register(NewStatic("a", nil)); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := r.Register(NewStatic("a", nil)); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatal("expected provider a")
	}
	names := r.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("List() = %v", names)
	}
	if !r.Remove("a") || r.Remove("a") {
		t.Fatal("Remove() should report presence once")
	}
}

func TestBuild_Kinds(t *testing.T) {
	p, err := Build(BuildConfig{Name: "local", Kind: "ollama"})
	if err != nil {
		t.Fatalf("Build(ollama) error: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("Name() = %q", p.Name())
	}

	p, err = Build(BuildConfig{Name: "fixed", Kind: "static", Models: []string{"m1", "m2"}})
	if err != nil {
		t.Fatalf("Build(static) error: %v", err)
	}
	models, _ := p.FetchCatalog(context.Background())
	if len(models) != 2 {
		t.Fatalf("static models = %d", len(models))
	}

	if _, err := Build(BuildConfig{Name: "g", Kind: "Groq"}); err != nil {
		t.Fatalf("Build(groq preset) error: %v", err)
	}

	if _, err := Build(BuildConfig{Name: "x", Kind: "carrier-pigeon"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}

	var cfgErr *ConfigError
	if _, err := Build(BuildConfig{Name: "own", Kind: KindCustom}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError for custom kind, got %v", err)
	}
}

func TestStaticProvider_ReturnsCopies(t *testing.T) {
	p := NewStatic("s", []ModelInfo{{ID: "m", Tags: []string{"a"}}})
	models, _ := p.FetchCatalog(context.Background())
	models[0].Tags[0] = "mutated"
	again, _ := p.FetchCatalog(context.Background())
	if again[0].Tags[0] != "a" {
		t.Fatal("static catalog was mutated through a returned copy")
	}
	res, err := p.Probe(context.Background())
	if err != nil || !res.Healthy {
		t.Fatalf("Probe() = %+v, %v", res, err)
	}
}
