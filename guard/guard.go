// Package guard decides whether a navigation may enter a protected view.
// A guard consults, in order of increasing cost: navigation state carried
// from a just-completed sign-in, a direct read of the durable session
// store, the in-memory session container, and finally a live verification.
// The host renders a loading affordance while the guard is hydrating or
// checking; it never shows protected content early and never hangs.
package guard

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jobdeck/jobdeck/identity"
	"github.com/jobdeck/jobdeck/session"
	"github.com/jobdeck/jobdeck/store"
)

// Default navigation targets.
const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/dashboard"
)

// Outcome is a guard's final answer for one navigation.
type Outcome int

const (
	// OutcomeAuthorized admits the navigation.
	OutcomeAuthorized Outcome = iota
	// OutcomeRedirectLogin rejects it toward the login view.
	OutcomeRedirectLogin
	// OutcomeRedirectHome rejects an admin view toward the default
	// authenticated landing view. The session is untouched.
	OutcomeRedirectHome
	// OutcomeAbandoned means the guard was closed while deciding; the
	// verification result was discarded and nothing should be applied.
	OutcomeAbandoned
)

// Decision tells the host what to do with the navigation.
type Decision struct {
	Outcome    Outcome
	RedirectTo string
	// Replace asks the host to replace the current history entry instead
	// of pushing, so "back" does not bounce through the rejected view.
	Replace bool
}

// Phase is the guard's observable progress for one navigation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseHydrating
	PhaseChecking
	PhaseAuthorized
	PhaseUnauthorized
)

// Navigation describes an inbound navigation: the target path and, when the
// navigation comes straight from a completed session exchange, the freshly
// committed user carried as in-memory state.
type Navigation struct {
	Path string
	User *identity.User
}

// Sessions is the slice of the session container a guard depends on.
type Sessions interface {
	Snapshot() store.Snapshot
	WaitHydrated(ctx context.Context, ceiling time.Duration) bool
	CheckAuth(ctx context.Context) bool
}

// verification is one in-flight CheckAuth shared by every evaluation of the
// same path on this guard instance.
type verification struct {
	done chan struct{}
	ok   bool
}

// Guard gates protected (and optionally admin-only) views.
type Guard struct {
	sessions  Sessions
	store     store.Store
	adminOnly bool
	ceiling   time.Duration
	loginPath string
	homePath  string
	logger    *slog.Logger

	mu      sync.Mutex
	phase   Phase
	path    string
	current *verification
	closed  bool
}

// Option configures a Guard.
type Option func(*Guard)

// WithCeiling overrides the hydration wait ceiling.
func WithCeiling(d time.Duration) Option {
	return func(g *Guard) { g.ceiling = d }
}

// WithPaths overrides the login and landing redirect targets.
func WithPaths(login, home string) Option {
	return func(g *Guard) {
		g.loginPath = login
		g.homePath = home
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// NewProtected creates a guard that requires an authenticated session.
func NewProtected(sessions Sessions, s store.Store, opts ...Option) *Guard {
	return newGuard(sessions, s, false, opts)
}

// NewAdmin creates a guard that additionally requires the admin role. The
// role predicate runs at every admitting path, so a cached non-admin
// session is redirected without any network call.
func NewAdmin(sessions Sessions, s store.Store, opts ...Option) *Guard {
	return newGuard(sessions, s, true, opts)
}

func newGuard(sessions Sessions, s store.Store, adminOnly bool, opts []Option) *Guard {
	g := &Guard{
		sessions:  sessions,
		store:     s,
		adminOnly: adminOnly,
		ceiling:   session.HydrationCeiling,
		loginPath: DefaultLoginPath,
		homePath:  DefaultHomePath,
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return g
}

// Phase returns the guard's current phase. Hosts render a loading
// affordance while it is PhaseHydrating or PhaseChecking.
func (g *Guard) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Close tears the guard down. A verification still in flight completes but
// its result is discarded: Evaluate returns OutcomeAbandoned instead of a
// redirect or an admit.
func (g *Guard) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Evaluate decides the given navigation. Safe for concurrent use; parallel
// evaluations of the same path share a single verification.
func (g *Guard) Evaluate(ctx context.Context, nav Navigation) Decision {
	// A navigation straight out of the session exchange already carries
	// the committed user; admit without touching anything else.
	if nav.User != nil {
		return g.finish(g.roleGate(*nav.User))
	}

	// Direct storage read: a complete persisted snapshot admits without
	// waiting on hydration.
	if snap, ok := store.ReadCached(g.store); ok {
		return g.finish(g.roleGate(*snap.User))
	}

	g.setPhase(PhaseHydrating)
	g.sessions.WaitHydrated(ctx, g.ceiling)

	snap := g.sessions.Snapshot()
	if snap.IsAuthenticated && snap.Token != "" && snap.User != nil {
		return g.finish(g.roleGate(*snap.User))
	}

	g.setPhase(PhaseChecking)
	ok := g.verify(ctx, nav.Path)

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return Decision{Outcome: OutcomeAbandoned}
	}

	if !ok {
		return g.finish(Decision{
			Outcome:    OutcomeRedirectLogin,
			RedirectTo: g.loginPath,
			Replace:    true,
		})
	}
	after := g.sessions.Snapshot()
	if after.User == nil {
		return g.finish(Decision{
			Outcome:    OutcomeRedirectLogin,
			RedirectTo: g.loginPath,
			Replace:    true,
		})
	}
	return g.finish(g.roleGate(*after.User))
}

// verify runs at most one CheckAuth per navigated path. A second
// evaluation of the same path waits for the in-flight verification and
// shares its answer; a new path starts a fresh one.
func (g *Guard) verify(ctx context.Context, path string) bool {
	g.mu.Lock()
	if g.current != nil && g.path == path {
		v := g.current
		g.mu.Unlock()
		<-v.done
		return v.ok
	}
	v := &verification{done: make(chan struct{})}
	g.current = v
	g.path = path
	g.mu.Unlock()

	v.ok = g.sessions.CheckAuth(ctx)
	close(v.done)
	return v.ok
}

func (g *Guard) roleGate(u identity.User) Decision {
	if g.adminOnly && !u.Role.IsAdmin() {
		return Decision{
			Outcome:    OutcomeRedirectHome,
			RedirectTo: g.homePath,
			Replace:    true,
		}
	}
	return Decision{Outcome: OutcomeAuthorized}
}

func (g *Guard) finish(d Decision) Decision {
	switch d.Outcome {
	case OutcomeAuthorized:
		g.setPhase(PhaseAuthorized)
	case OutcomeRedirectLogin, OutcomeRedirectHome:
		g.setPhase(PhaseUnauthorized)
	}
	return d
}

func (g *Guard) setPhase(p Phase) {
	g.mu.Lock()
	g.phase = p
	g.mu.Unlock()
}
