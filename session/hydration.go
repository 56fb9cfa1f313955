package session

import (
	"context"
	"time"
)

// markHydrated completes the false→true hydrated transition. It is a
// one-shot: later calls are no-ops, so hydrated can never revert.
func (m *Manager) markHydrated() {
	m.hydrateOnce.Do(func() {
		m.mu.Lock()
		m.hydrated = true
		m.mu.Unlock()
		close(m.hydratedCh)
	})
}

// Hydrated reports whether the snapshot has been restored from the store
// (or construction completed with no prior snapshot).
func (m *Manager) Hydrated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hydrated
}

// WaitHydrated blocks until rehydration completes or the ceiling elapses,
// whichever is first. It returns true only if hydration won the race. The
// ceiling bounds worst-case latency even when the store backend is slow or
// unavailable; the timer is always released on exit.
//
// Cancelling ctx releases the waiter early — a torn-down caller leaks no
// pending timer.
func (m *Manager) WaitHydrated(ctx context.Context, ceiling time.Duration) bool {
	select {
	case <-m.hydratedCh:
		return true
	default:
	}

	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-m.hydratedCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return m.Hydrated()
	}
}
