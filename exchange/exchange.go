// Package exchange implements the one-shot session exchange: converting the
// opaque session identifier delivered by the identity provider's redirect
// into a durable bearer token and committed user profile.
package exchange

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/jobdeck/jobdeck/identity"
)

// State is a phase of the exchange protocol. Success and Failed are
// terminal; a handler never leaves a terminal state.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateExchanging
	StateCommitting
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateExchanging:
		return "exchanging"
	case StateCommitting:
		return "committing"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// missingRedirectDelay is how long a missing-identifier or
	// missing-token message stays visible before the login redirect.
	missingRedirectDelay = 2 * time.Second
	// exchangeRedirectDelay is slightly longer because the exchange
	// failure message carries more detail to read.
	exchangeRedirectDelay = 3 * time.Second
)

// Exchanger is the slice of the identity client the handler needs.
type Exchanger interface {
	ExchangeSession(ctx context.Context, sessionID string) (*identity.ExchangeResult, error)
}

// Committer is the slice of the session container the handler needs.
type Committer interface {
	SetUser(user identity.User, token string)
}

// Navigator is the host's navigation surface. The handler drives it; it
// never inspects it.
type Navigator interface {
	// ClearFragment removes the consumed session identifier from the
	// visible location, so a reload cannot re-trigger the exchange.
	ClearFragment()
	// ToDashboard navigates to the authenticated landing view, carrying
	// the freshly committed user as navigation state.
	ToDashboard(user identity.User)
	// ToLogin navigates to the login view.
	ToLogin()
}

// Result is the terminal outcome of a handler run.
type Result struct {
	State State
	User  *identity.User
	Err   *Error
}

// Handler runs the session exchange exactly once per construction. Re-runs
// are no-ops that return the memoized outcome; duplicate triggers from the
// host never reach the backend.
type Handler struct {
	api      Exchanger
	sessions Committer
	nav      Navigator
	logger   *slog.Logger
	schedule func(d time.Duration, fn func()) (cancel func())

	mu             sync.Mutex
	state          State
	started        bool
	result         Result
	cancelRedirect func()

	done chan struct{}
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithScheduler overrides how the timed login redirect is scheduled. Tests
// substitute a recording scheduler to verify the exact delay.
func WithScheduler(schedule func(d time.Duration, fn func()) (cancel func())) Option {
	return func(h *Handler) { h.schedule = schedule }
}

// New creates an idle Handler.
func New(api Exchanger, sessions Committer, nav Navigator, opts ...Option) *Handler {
	h := &Handler{
		api:      api,
		sessions: sessions,
		nav:      nav,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if h.schedule == nil {
		h.schedule = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	return h
}

// State returns the handler's current phase.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Run executes the exchange for the given inbound redirect URL. The
// one-shot latch is taken synchronously before any I/O: a second Run —
// whatever its argument — performs no work and blocks until the first
// finishes, then returns the same Result.
func (h *Handler) Run(ctx context.Context, rawURL string) Result {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		<-h.done
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result
	}
	h.started = true
	h.state = StateExtracting
	h.mu.Unlock()

	return h.run(ctx, rawURL)
}

func (h *Handler) run(ctx context.Context, rawURL string) Result {
	sessionID := ParseSessionID(rawURL)
	if sessionID == "" {
		return h.fail(KindSessionIDMissing, missingRedirectDelay)
	}

	h.setState(StateExchanging)
	res, err := h.api.ExchangeSession(ctx, sessionID)
	if err != nil {
		h.logger.Warn("session exchange failed", slog.String("error", err.Error()))
		return h.fail(classify(err), exchangeRedirectDelay)
	}

	h.setState(StateCommitting)
	if res.AccessToken == "" {
		return h.fail(KindTokenMissing, missingRedirectDelay)
	}

	user := res.Profile()
	h.sessions.SetUser(user, res.AccessToken)
	h.nav.ClearFragment()

	h.mu.Lock()
	h.state = StateSuccess
	h.result = Result{State: StateSuccess, User: &user}
	result := h.result
	h.mu.Unlock()
	close(h.done)

	h.nav.ToDashboard(user)
	return result
}

// fail records a terminal failure and schedules the login redirect. The
// message stays visible for the scheduled delay; the redirect never fires
// early and is cancellable via Close.
func (h *Handler) fail(kind Kind, delay time.Duration) Result {
	exchErr := newError(kind)

	h.mu.Lock()
	h.state = StateFailed
	h.result = Result{State: StateFailed, Err: exchErr}
	h.cancelRedirect = h.schedule(delay, h.nav.ToLogin)
	result := h.result
	h.mu.Unlock()
	close(h.done)

	return result
}

// Close cancels a pending login redirect. Call it when the host tears the
// handler down so no callback fires against a dismantled surface.
func (h *Handler) Close() {
	h.mu.Lock()
	cancel := h.cancelRedirect
	h.cancelRedirect = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// ParseSessionID extracts the one-time session identifier from an inbound
// redirect URL. The identifier may arrive in the fragment
// (#session_id=...) or, via the loopback relay, in the query string.
// Returns "" when no identifier is present.
func ParseSessionID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Fragment != "" {
		if vals, err := url.ParseQuery(u.Fragment); err == nil {
			if id := vals.Get("session_id"); id != "" {
				return id
			}
		}
	}
	return u.Query().Get("session_id")
}
