package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ferro-labs/gateway-core/internal/logging"
	"github.com/ferro-labs/gateway-core/internal/metrics"
)

// DefaultTimeout bounds a single sink delivery.
const DefaultTimeout = 10 * time.Second

// Dispatcher fans events out to sinks asynchronously. Sink errors and
// panics are logged and counted, never returned to the publisher.
type Dispatcher struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	sinks  []Sink
	filter map[string]map[Type]bool // sink name -> accepted types, nil = all
	closed bool

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. A zero timeout uses DefaultTimeout.
func NewDispatcher(timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		timeout: timeout,
		logger:  logging.OrDefault(logger),
		filter:  make(map[string]map[Type]bool),
	}
}

// Register adds a sink. types restricts delivery to the listed event types;
// none means every type.
func (d *Dispatcher) Register(s Sink, types ...Type) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("sink %s: dispatcher closed", s.Name())
	}
	for _, existing := range d.sinks {
		if existing.Name() == s.Name() {
			return fmt.Errorf("sink %s already registered", s.Name())
		}
	}
	d.sinks = append(d.sinks, s)
	if len(types) > 0 {
		accept := make(map[Type]bool, len(types))
		for _, t := range types {
			accept[t] = true
		}
		d.filter[s.Name()] = accept
	}
	d.logger.Info("notification sink registered", "sink", s.Name(), "types", len(types))
	return nil
}

// Sinks returns the names of the registered sinks.
func (d *Dispatcher) Sinks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		out[i] = s.Name()
	}
	return out
}

// HasSinks reports whether any sink is registered.
func (d *Dispatcher) HasSinks() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks) > 0
}

// Publish delivers ev to every accepting sink in the background. Events
// published after Close are dropped.
func (d *Dispatcher) Publish(ev Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logger.Debug("notification dropped, dispatcher closed", "event", ev.Type, "provider", ev.Provider)
		return
	}
	targets := make([]Sink, 0, len(d.sinks))
	for _, s := range d.sinks {
		if accept, ok := d.filter[s.Name()]; ok && !accept[ev.Type] {
			continue
		}
		targets = append(targets, s)
	}
	// Close sets closed under the write lock before waiting, so every Add
	// happens before its Wait.
	d.wg.Add(len(targets))
	d.mu.RUnlock()

	for _, s := range targets {
		go d.deliver(s, ev)
	}
}

func (d *Dispatcher) deliver(s Sink, ev Event) {
	defer d.wg.Done()
	result := "delivered"
	defer func() {
		if r := recover(); r != nil {
			result = "failed"
			d.logger.Error("notification sink panicked", "sink", s.Name(), "event", ev.Type, "panic", r)
		}
		metrics.NotificationsTotal.WithLabelValues(s.Name(), string(ev.Type), result).Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := s.Notify(ctx, ev); err != nil {
		result = "failed"
		d.logger.Warn("notification delivery failed",
			"sink", s.Name(),
			"event", ev.Type,
			"provider", ev.Provider,
			"error", err,
		)
	}
}

// Wait blocks until every in-flight delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting events, waits for in-flight deliveries and closes
// sinks implementing Closer.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, s := range d.sinks {
		c, ok := s.(Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = fmt.Errorf("close sink %s: %w", s.Name(), err)
		}
	}
	d.sinks = nil
	d.filter = make(map[string]map[Type]bool)
	return first
}
