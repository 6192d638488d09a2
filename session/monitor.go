package session

import (
	"context"
	"time"

	"github.com/drippler/drippler"
)

// startMonitor replaces the running background check with a new one. The
// check outlives the context of the call that connected.
func (m *Manager) startMonitor(ctx context.Context) {
	if m.checkInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	m.mu.Lock()
	previous := m.stopMonitor
	m.stopMonitor = func() {
		cancel()
		<-done
	}
	m.mu.Unlock()
	if previous != nil {
		previous()
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		m.log.Debug().Dur("interval", m.checkInterval).Msg("started periodic session check")
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CheckSession(ctx); err != nil {
					m.log.Warn().Err(err).Msg("periodic session check failed")
				}
			}
		}
	}()
}

// CheckSession renews the session when it expires within the refresh
// threshold. A refresh failure leaves the session as it is for the next
// check; failing to reach the service marks the process disconnected.
func (m *Manager) CheckSession(ctx context.Context) error {
	backend, err := m.Backend()
	if err != nil {
		return nil
	}

	s, err := backend.GetSession(ctx)
	if err != nil {
		if drippler.KindOf(err) == drippler.KindConnectivity {
			m.markDisconnected(ctx, err)
		}
		return err
	}
	if s == nil {
		return nil
	}

	remaining := s.Expiry().Sub(m.now())
	m.log.Debug().Dur("remaining", remaining).Msg("session check")
	if remaining >= m.refreshThreshold {
		return nil
	}

	m.log.Info().Dur("remaining", remaining).Msg("session expires soon, refreshing")
	if _, err := m.refresh(ctx, backend); err != nil {
		return err
	}
	return nil
}
