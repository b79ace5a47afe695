package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Sink is the interface all notification sinks implement.
type Sink interface {
	Name() string
	Init(config map[string]interface{}) error
	Notify(ctx context.Context, ev Event) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

// SinkFactory creates a new, uninitialised sink.
type SinkFactory func() Sink

var (
	registryMu   sync.RWMutex
	sinkRegistry = map[string]SinkFactory{}
)

// RegisterFactory registers a sink factory by name. A later registration
// under the same name replaces the earlier one.
func RegisterFactory(name string, factory SinkFactory) {
	registryMu.Lock()
	sinkRegistry[name] = factory
	registryMu.Unlock()
}

// GetFactory returns a sink factory by name.
func GetFactory(name string) (SinkFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := sinkRegistry[name]
	return f, ok
}

// RegisteredSinks returns the names of all registered sink factories, sorted.
func RegisteredSinks() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(sinkRegistry))
	for name := range sinkRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates and initialises the sink registered under name.
func Build(name string, config map[string]interface{}) (Sink, error) {
	f, ok := GetFactory(name)
	if !ok {
		return nil, fmt.Errorf("unknown sink %q", name)
	}
	s := f()
	if err := s.Init(config); err != nil {
		return nil, fmt.Errorf("init sink %s: %w", name, err)
	}
	return s, nil
}

// FuncSink adapts a function to Sink. Init is a no-op.
type FuncSink struct {
	SinkName string
	Fn       func(ctx context.Context, ev Event) error
}

// Name returns the sink name.
func (f FuncSink) Name() string { return f.SinkName }

// Init does nothing.
func (f FuncSink) Init(map[string]interface{}) error { return nil }

// Notify calls Fn.
func (f FuncSink) Notify(ctx context.Context, ev Event) error { return f.Fn(ctx, ev) }
