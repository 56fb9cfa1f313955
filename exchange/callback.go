package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// relayPage forwards a fragment-delivered session identifier back to the
// listener as a query string. Fragments never reach a server, so the first
// hit serves this page and the script re-requests with the fragment
// contents made visible.
const relayPage = `<!DOCTYPE html>
<html>
<head><title>Signing in…</title></head>
<body>
<p>Completing sign-in…</p>
<script>
  var h = window.location.hash;
  if (h && h.length > 1) {
    window.location.replace("/callback?" + h.substring(1));
  }
</script>
</body>
</html>
`

const closePage = `<!DOCTYPE html>
<html>
<head><title>Signed in</title></head>
<body><p>Sign-in complete. You can close this window.</p></body>
</html>
`

// Listener is a loopback HTTP server that receives the identity provider's
// post-login redirect and surfaces the raw redirect URL to the caller.
type Listener struct {
	logger   *slog.Logger
	listener net.Listener
	server   *http.Server
	urls     chan string
}

// NewListener binds a loopback port and starts serving the callback route.
// Use RedirectURI as the redirect target handed to the provider.
func NewListener(logger *slog.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("binding callback listener: %w", err)
	}

	l := &Listener{
		logger:   logger,
		listener: ln,
		urls:     make(chan string, 1),
	}

	r := chi.NewRouter()
	r.Get("/callback", l.handleCallback)

	l.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("callback listener stopped", slog.String("error", err.Error()))
		}
	}()
	return l, nil
}

// RedirectURI returns the loopback URL the provider should redirect to.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://%s/callback", l.listener.Addr().String())
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("session_id") == "" && q.Get("code") == "" {
		// No identifier in the query: either the provider used the
		// fragment, which only the browser can see, or this is a stray
		// hit. Serve the relay page; the script re-requests with the
		// fragment contents as a query.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, relayPage)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, closePage)

	select {
	case l.urls <- l.RedirectURI() + "?" + q.Encode():
	default:
		// A redirect was already delivered; drop duplicates.
	}
}

// Wait blocks until the provider's redirect arrives or ctx is done.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	select {
	case u := <-l.urls:
		return u, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for sign-in redirect: %w", ctx.Err())
	}
}

// Close shuts the listener down.
func (l *Listener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

// BuildAuthorizeURL assembles the provider authorization URL with a fresh
// state nonce. The caller must verify the returned state against the
// redirect with VerifyState.
func BuildAuthorizeURL(authorizeURL, clientID, redirectURI, scope string) (string, string, error) {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing authorize url: %w", err)
	}
	state := uuid.NewString()
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	if scope != "" {
		q.Set("scope", scope)
	}
	u.RawQuery = q.Encode()
	return u.String(), state, nil
}

// VerifyState checks that the redirect carries the state nonce issued with
// the authorization URL. A missing or mismatched state rejects the
// redirect outright.
func VerifyState(rawURL, want string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing redirect url: %w", err)
	}
	got := u.Query().Get("state")
	if got == "" {
		if u.Fragment != "" {
			if vals, err := url.ParseQuery(u.Fragment); err == nil {
				got = vals.Get("state")
			}
		}
	}
	if got == "" || got != want {
		return errors.New("state mismatch in sign-in redirect")
	}
	return nil
}
