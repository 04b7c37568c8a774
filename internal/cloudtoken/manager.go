package cloudtoken

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// renewInterval keeps the token fresh well inside maxTokenAge.
const renewInterval = 7 * time.Minute

// RenewFunc fetches a fresh token from the upstream service.
type RenewFunc func(ctx context.Context) (*Token, error)

// Manager keeps the token file fresh by renewing it periodically.
type Manager struct {
	store    *Store
	renew    RenewFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a token manager around the given store and renew func.
func NewManager(store *Store, renew RenewFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		renew:    renew,
		interval: renewInterval,
		logger:   logger,
	}
}

// SetInterval overrides the renewal interval. Intended for tests.
func (m *Manager) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// Healthy reports whether the managed token is currently usable.
func (m *Manager) Healthy() bool {
	return m.store.Healthy()
}

// RenewNow performs a single renewal and persists the result.
func (m *Manager) RenewNow(ctx context.Context) error {
	tok, err := m.renew(ctx)
	if err != nil {
		return err
	}
	tok.FetchedAt = time.Now().Format(time.RFC3339)
	return m.store.Save(tok)
}

// Start launches the renewal loop. It renews immediately, then on every
// interval tick until the context is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		if err := m.RenewNow(ctx); err != nil {
			m.logger.Warn("token renewal failed", "error", err)
		}
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RenewNow(ctx); err != nil {
					m.logger.Warn("token renewal failed", "error", err)
					continue
				}
				m.logger.Debug("token renewed", "path", m.store.Path())
			}
		}
	}()
}

// Stop terminates the renewal loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
