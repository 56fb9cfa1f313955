package exchange

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListenerDeliversQueryRedirect(t *testing.T) {
	l, err := NewListener(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	resp, err := http.Get(l.RedirectURI() + "?session_id=abc123&state=s1")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "close this window")

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	raw, err := l.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", ParseSessionID(raw))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "s1", u.Query().Get("state"))
}

// A hit with no identifier in the query serves the relay page: only the
// browser can see a fragment, so the page's script re-requests with the
// fragment contents in the query string.
func TestListenerServesRelayForFragmentRedirect(t *testing.T) {
	l, err := NewListener(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	resp, err := http.Get(l.RedirectURI())
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "window.location.hash")
	assert.Contains(t, string(body), "/callback?")
}

func TestListenerDropsDuplicateRedirects(t *testing.T) {
	l, err := NewListener(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	for i := 0; i < 3; i++ {
		resp, err := http.Get(l.RedirectURI() + "?session_id=abc123")
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	_, err = l.Wait(ctx)
	require.NoError(t, err)

	// Only one delivery is buffered; later hits were dropped.
	ctx2, cancel2 := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel2()
	_, err = l.Wait(ctx2)
	assert.Error(t, err)
}

func TestBuildAuthorizeURL(t *testing.T) {
	raw, state, err := BuildAuthorizeURL("https://sso.example.com/authorize", "jobdeck-cli", "http://127.0.0.1:9999/callback", "profile")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "jobdeck-cli", q.Get("client_id"))
	assert.Equal(t, "http://127.0.0.1:9999/callback", q.Get("redirect_uri"))
	assert.Equal(t, state, q.Get("state"))
	assert.Equal(t, "profile", q.Get("scope"))
}

func TestBuildAuthorizeURLUniqueState(t *testing.T) {
	_, s1, err := BuildAuthorizeURL("https://sso.example.com/authorize", "c", "r", "")
	require.NoError(t, err)
	_, s2, err := BuildAuthorizeURL("https://sso.example.com/authorize", "c", "r", "")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestVerifyState(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"query match", "http://127.0.0.1/cb?state=s1&session_id=x", "s1", false},
		{"fragment match", "http://127.0.0.1/cb#state=s1&session_id=x", "s1", false},
		{"mismatch", "http://127.0.0.1/cb?state=evil", "s1", true},
		{"missing", "http://127.0.0.1/cb?session_id=x", "s1", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifyState(tc.url, tc.want)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
