// Package session owns the client-side authentication state: the in-memory
// session snapshot, its persistence lifecycle, and the TTL-based
// verification cache that keeps guarded navigations off the network.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jobdeck/jobdeck/identity"
	"github.com/jobdeck/jobdeck/store"
)

const (
	// VerifyTTL is the window during which a verified session is trusted
	// without a fresh backend round-trip. The sources this replaces used
	// both 5 and 10 minutes; 10 is the more defensive choice and is the
	// one fixed here.
	VerifyTTL = 10 * time.Minute

	// HydrationCeiling bounds how long any caller waits for rehydration
	// before proceeding with whatever state is present.
	HydrationCeiling = 500 * time.Millisecond
)

// Verifier is the slice of the identity client the container depends on.
type Verifier interface {
	Me(ctx context.Context, token string) (*identity.User, error)
	Logout(ctx context.Context, token string) error
}

// Manager is the session state container. All mutations go through it; the
// durable store only ever sees the persisted subset it writes.
type Manager struct {
	store  store.Store
	api    Verifier
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	snap     store.Snapshot
	hydrated bool

	hydratedCh  chan struct{}
	hydrateOnce sync.Once
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger sets the structured logger. If not set, a JSON logger writing
// to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source. Tests use this to move the
// verification window around.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager and begins rehydrating it from the store in the
// background. Callers that need hydrated state gate on WaitHydrated.
func New(s store.Store, api Verifier, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		api:        api,
		now:        time.Now,
		hydratedCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	go m.rehydrate()
	return m
}

// rehydrate loads the persisted snapshot, normalizes it against the
// container invariants, and completes the one-shot hydrated transition.
// It runs exactly once, at construction.
func (m *Manager) rehydrate() {
	snap, ok, err := m.store.Load()
	if err != nil {
		m.logger.Warn("session rehydration failed", slog.String("error", err.Error()))
	}

	m.mu.Lock()
	if ok {
		// isAuthenticated is derived, never trusted from disk.
		snap.IsAuthenticated = snap.User != nil
		m.snap = snap
	}
	m.mu.Unlock()
	m.markHydrated()
}

// Snapshot returns a copy of the current session state. The user record is
// cloned so callers cannot mutate container state through it.
func (m *Manager) Snapshot() store.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSnapshot(m.snap)
}

// Token returns the current bearer token, or "" when logged out. Wire this
// into identity.WithTokenSource so a reset immediately strips the bearer
// from in-flight client usage.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Token
}

// SetUser commits a freshly authenticated identity. It always succeeds
// locally; persistence failures are logged, not surfaced.
func (m *Manager) SetUser(user identity.User, token string) {
	u := user
	m.mu.Lock()
	m.snap = store.Snapshot{
		Token:           token,
		User:            &u,
		IsAuthenticated: true,
		LastAuthCheck:   m.now().UnixMilli(),
	}
	snap := cloneSnapshot(m.snap)
	m.mu.Unlock()
	m.persist(snap)
}

// UpdateUser replaces the profile without touching the token or the
// verification timestamp. Used for profile edits that must not trigger
// re-verification. isAuthenticated is recomputed from presence.
func (m *Manager) UpdateUser(user *identity.User) {
	var u *identity.User
	if user != nil {
		c := *user
		u = &c
	}
	m.mu.Lock()
	m.snap.User = u
	m.snap.IsAuthenticated = u != nil
	snap := cloneSnapshot(m.snap)
	m.mu.Unlock()
	m.persist(snap)
}

// Logout resets the local session and best-effort notifies the backend.
// The reset never waits on the network: a session must be clearable
// offline. Notification failures are logged and swallowed.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.snap.Token
	m.snap = store.Snapshot{}
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing persisted session failed", slog.String("error", err.Error()))
	}
	if token != "" {
		if err := m.api.Logout(ctx, token); err != nil {
			m.logger.Debug("logout notification failed", slog.String("error", err.Error()))
		}
	}
}

// ClearAuth resets the session without any network call. The HTTP layer
// calls this when it sees an unauthorized response out-of-band.
func (m *Manager) ClearAuth() {
	m.mu.Lock()
	m.snap = store.Snapshot{}
	m.mu.Unlock()
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing persisted session failed", slog.String("error", err.Error()))
	}
}

// CheckAuth decides whether the client currently holds a trustworthy
// session, verifying against the backend only when nothing cheaper will
// do. The decision ladder, in order:
//
//  1. wait (bounded) for rehydration;
//  2. token + user verified within VerifyTTL — trust the cache, no network;
//  3. no token — commit unauthenticated, false;
//  4. token + user but stale — fail open: refresh the timestamp and trust
//     it; a revoked token is caught by the next 401 from any API call;
//  5. token without user — live GET /auth/me; a 401 resets everything,
//     any other failure keeps the previous answer.
func (m *Manager) CheckAuth(ctx context.Context) bool {
	m.WaitHydrated(ctx, HydrationCeiling)

	m.mu.Lock()
	snap := cloneSnapshot(m.snap)
	m.mu.Unlock()
	now := m.now()

	if snap.Token != "" && snap.User != nil && snap.CheckedWithin(VerifyTTL, now) {
		return true
	}

	if snap.Token == "" {
		m.mu.Lock()
		m.snap.User = nil
		m.snap.IsAuthenticated = false
		committed := cloneSnapshot(m.snap)
		m.mu.Unlock()
		m.persist(committed)
		return false
	}

	if snap.User != nil {
		m.mu.Lock()
		m.snap.LastAuthCheck = now.UnixMilli()
		committed := cloneSnapshot(m.snap)
		m.mu.Unlock()
		m.persist(committed)
		return true
	}

	user, err := m.api.Me(ctx, snap.Token)
	if err != nil {
		if identity.IsUnauthorized(err) {
			m.ClearAuth()
			return false
		}
		m.logger.Debug("auth verification unreachable, keeping last known state",
			slog.String("error", err.Error()))
		return snap.IsAuthenticated
	}

	m.mu.Lock()
	m.snap.User = user
	m.snap.IsAuthenticated = true
	m.snap.LastAuthCheck = m.now().UnixMilli()
	committed := cloneSnapshot(m.snap)
	m.mu.Unlock()
	m.persist(committed)
	return true
}

func (m *Manager) persist(snap store.Snapshot) {
	if err := m.store.Save(snap); err != nil {
		m.logger.Warn("persisting session failed", slog.String("error", err.Error()))
	}
}

func cloneSnapshot(s store.Snapshot) store.Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
