package health

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sweep probes every tracked provider, ProviderBatch at a time, then checks
// every tracked model, ModelBatch at a time. Individual failures are logged
// and never abort the sweep.
func (m *Monitor) Sweep(ctx context.Context) {
	runBatches(ctx, m.Providers(), m.opts.ProviderBatch, m.opts.Logger, func(p string) {
		if _, err := m.CheckProvider(ctx, p); err != nil && !errors.Is(err, ErrSkipped) && !errors.Is(err, ErrUnknownEntity) {
			m.opts.Logger.Debug("provider probe failed", "provider", p, "error", err)
		}
	})
	runBatches(ctx, m.Models(""), m.opts.ModelBatch, m.opts.Logger, func(h ModelHealth) {
		_, _ = m.CheckModel(h.Provider, h.Model)
	})
}

func runBatches[T any](ctx context.Context, items []T, size int, log *slog.Logger, fn func(T)) {
	for start := 0; start < len(items); start += size {
		if ctx.Err() != nil {
			return
		}
		end := min(start+size, len(items))
		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						log.Error("health check panicked", "panic", r)
					}
				}()
				fn(item)
			}()
		}
		wg.Wait()
	}
}

// Start arms the periodic sweep. The first sweep runs one Interval after
// Start. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.gen++
	m.armLocked(ctx, m.gen)
	m.opts.Logger.Info("health monitor started", "interval", m.opts.Interval.String())
}

func (m *Monitor) armLocked(ctx context.Context, gen uint64) {
	m.timer = m.opts.Clock.AfterFunc(m.opts.Interval, func() { m.tick(ctx, gen) })
}

func (m *Monitor) tick(ctx context.Context, gen uint64) {
	m.loopMu.Lock()
	live := m.running && m.gen == gen
	m.loopMu.Unlock()
	if !live || ctx.Err() != nil {
		return
	}

	m.Sweep(ctx)

	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.running && m.gen == gen && ctx.Err() == nil {
		m.armLocked(ctx, gen)
	}
}

// Stop cancels the pending sweep. A sweep already in progress finishes but
// is not rescheduled.
func (m *Monitor) Stop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Running reports whether periodic sweeps are armed.
func (m *Monitor) Running() bool {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	return m.running
}
