package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler is called with the new state on every online/offline transition.
type Handler func(online bool)

// Prober checks whether the remote service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

type subscription struct {
	id uint64
	fn Handler
}

// Monitor is a boolean online/offline event source.
type Monitor struct {
	probe    Prober
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	online   bool
	nextID   uint64
	handlers []subscription
}

func NewMonitor(probe Prober, interval time.Duration, log *slog.Logger) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%s: must be GT 0", "interval")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{probe: probe, interval: interval, log: log}, nil
}

// OnChange registers h for transitions and returns a function that removes it.
func (m *Monitor) OnChange(h Handler) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, subscription{id: id, fn: h})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.handlers {
			if s.id == id {
				m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// Online reports the last observed state. A new Monitor starts offline.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the current state and notifies subscribers if it changed.
// Handlers run synchronously on the caller's goroutine, outside the lock.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	handlers := make([]Handler, 0, len(m.handlers))
	for _, s := range m.handlers {
		handlers = append(handlers, s.fn)
	}
	m.mu.Unlock()

	m.log.Info("connectivity changed", "online", online)
	for _, h := range handlers {
		h(online)
	}
}

// Run probes the remote immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.probe.Ping(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.log.Debug("connectivity probe failed", "error", err)
	}
	m.Set(err == nil)
}
