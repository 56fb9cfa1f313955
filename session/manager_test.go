package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck/identity"
	"github.com/jobdeck/jobdeck/store"
)

// fakeAPI counts backend calls so tests can assert the zero-network paths.
type fakeAPI struct {
	mu          sync.Mutex
	meCalls     int
	logoutCalls int
	meUser      *identity.User
	meErr       error
	logoutErr   error
}

func (f *fakeAPI) Me(ctx context.Context, token string) (*identity.User, error) {
	f.mu.Lock()
	f.meCalls++
	f.mu.Unlock()
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := *f.meUser
	return &u, nil
}

func (f *fakeAPI) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	f.logoutCalls++
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAPI) calls() (me, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls, f.logoutCalls
}

func memberUser() identity.User {
	return identity.User{ID: "u-1", Email: "jane@example.com", Name: "Jane", Role: identity.RoleMember}
}

func newTestManager(t *testing.T, s store.Store, api Verifier, opts ...Option) *Manager {
	t.Helper()
	m := New(s, api, opts...)
	require.True(t, m.WaitHydrated(t.Context(), time.Second), "manager should hydrate promptly in tests")
	return m
}

func TestSetUserCommitsAuthenticatedSnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	m := newTestManager(t, st, &fakeAPI{})

	m.SetUser(memberUser(), "tok-1")

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "tok-1", snap.Token)
	require.NotNil(t, snap.User)
	assert.Equal(t, "jane@example.com", snap.User.Email)
	assert.NotZero(t, snap.LastAuthCheck)

	// The subset must be persisted.
	saved, ok, err := st.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", saved.Token)
	assert.True(t, saved.IsAuthenticated)
}

func TestUpdateUserLeavesTokenAndTimestampAlone(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), &fakeAPI{})
	m.SetUser(memberUser(), "tok-1")
	before := m.Snapshot()

	updated := memberUser()
	updated.Name = "Jane Q."
	m.UpdateUser(&updated)

	snap := m.Snapshot()
	assert.Equal(t, "Jane Q.", snap.User.Name)
	assert.Equal(t, before.Token, snap.Token)
	assert.Equal(t, before.LastAuthCheck, snap.LastAuthCheck)
	assert.True(t, snap.IsAuthenticated)
}

func TestUpdateUserToNilDropsAuthentication(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), &fakeAPI{})
	m.SetUser(memberUser(), "tok-1")

	m.UpdateUser(nil)

	snap := m.Snapshot()
	assert.Nil(t, snap.User)
	assert.False(t, snap.IsAuthenticated, "isAuthenticated must track user presence")
}

// Invariant: isAuthenticated == true ⇔ user present, at every mutation.
func TestAuthenticatedAlwaysImpliesUser(t *testing.T) {
	st := store.NewMemoryStore()
	api := &fakeAPI{meErr: &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "nope"}}
	m := newTestManager(t, st, api)

	check := func(label string) {
		snap := m.Snapshot()
		if snap.IsAuthenticated {
			assert.NotNil(t, snap.User, "%s: authenticated without user", label)
		} else {
			assert.Nil(t, snap.User, "%s: user without authentication", label)
		}
	}

	check("initial")
	m.SetUser(memberUser(), "tok")
	check("after SetUser")
	m.UpdateUser(nil)
	check("after UpdateUser(nil)")
	m.SetUser(memberUser(), "tok")
	m.ClearAuth()
	check("after ClearAuth")
	m.SetUser(memberUser(), "tok")
	m.Logout(t.Context())
	check("after Logout")
}

func TestCheckAuthFreshCacheSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, store.NewMemoryStore(), api)
	m.SetUser(memberUser(), "tok-1")

	require.True(t, m.CheckAuth(t.Context()))

	me, _ := api.calls()
	assert.Zero(t, me, "fresh cache must not hit the backend")
}

func TestCheckAuthNoTokenFailsClosed(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, store.NewMemoryStore(), api)

	assert.False(t, m.CheckAuth(t.Context()))

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	me, _ := api.calls()
	assert.Zero(t, me)
}

func TestCheckAuthStaleCacheFailsOpen(t *testing.T) {
	now := time.Now()
	clock := now
	api := &fakeAPI{}
	st := store.NewMemoryStore()
	m := newTestManager(t, st, api, WithClock(func() time.Time { return clock }))

	m.SetUser(memberUser(), "tok-1")

	// Move past the TTL: the cached verification has lapsed.
	clock = now.Add(VerifyTTL + time.Minute)

	require.True(t, m.CheckAuth(t.Context()), "stale token+user is trusted optimistically")

	snap := m.Snapshot()
	assert.Equal(t, clock.UnixMilli(), snap.LastAuthCheck, "timestamp refreshed to now")
	me, _ := api.calls()
	assert.Zero(t, me, "fail-open path must not verify remotely")
}

func TestCheckAuthVerifiesWhenUserAbsent(t *testing.T) {
	u := memberUser()
	api := &fakeAPI{meUser: &u}
	st := store.NewMemoryStore()
	st.Seed(store.Snapshot{Token: "tok-1"})
	m := newTestManager(t, st, api)

	require.True(t, m.CheckAuth(t.Context()))

	snap := m.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "jane@example.com", snap.User.Email)
	assert.True(t, snap.IsAuthenticated)
	assert.NotZero(t, snap.LastAuthCheck)
	me, _ := api.calls()
	assert.Equal(t, 1, me)
}

// Token present, user absent, backend rejects the token: everything is
// reset, including the persisted record.
func TestCheckAuthUnauthorizedResetsEverything(t *testing.T) {
	api := &fakeAPI{meErr: &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "token revoked"}}
	st := store.NewMemoryStore()
	st.Seed(store.Snapshot{Token: "tok-revoked"})
	m := newTestManager(t, st, api)

	assert.False(t, m.CheckAuth(t.Context()))

	snap := m.Snapshot()
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
	assert.False(t, snap.IsAuthenticated)

	_, ok, err := st.Load()
	require.NoError(t, err)
	assert.False(t, ok, "persisted record must be cleared")
}

// A transport failure during verification mutates nothing: the token stays
// for a later retry and the previous answer is returned.
func TestCheckAuthNetworkFailureKeepsLastKnownState(t *testing.T) {
	api := &fakeAPI{meErr: errors.New("connection refused")}
	st := store.NewMemoryStore()
	st.Seed(store.Snapshot{Token: "tok-1"})
	m := newTestManager(t, st, api)
	before := m.Snapshot()

	assert.False(t, m.CheckAuth(t.Context()))

	snap := m.Snapshot()
	assert.Equal(t, before, snap, "state must not be mutated on transport failure")
	assert.Equal(t, "tok-1", snap.Token, "token kept for the next attempt")
}

func TestLogoutNotifiesBackendBestEffort(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, store.NewMemoryStore(), api)
	m.SetUser(memberUser(), "tok-1")

	m.Logout(t.Context())

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Empty(t, snap.Token)
	_, logout := api.calls()
	assert.Equal(t, 1, logout)
}

func TestLogoutSucceedsOffline(t *testing.T) {
	api := &fakeAPI{logoutErr: errors.New("network is down")}
	st := store.NewMemoryStore()
	m := newTestManager(t, st, api)
	m.SetUser(memberUser(), "tok-1")

	m.Logout(t.Context())

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated, "local reset must not depend on the network")
	_, ok, err := st.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutWithoutTokenSkipsBackend(t *testing.T) {
	api := &fakeAPI{}
	m := newTestManager(t, store.NewMemoryStore(), api)

	m.Logout(t.Context())

	_, logout := api.calls()
	assert.Zero(t, logout)
}

func TestRehydrateRestoresPersistedSession(t *testing.T) {
	u := memberUser()
	st := store.NewMemoryStore()
	st.Seed(store.Snapshot{
		Token:           "tok-1",
		User:            &u,
		IsAuthenticated: true,
		LastAuthCheck:   time.Now().UnixMilli(),
	})

	m := newTestManager(t, st, &fakeAPI{})

	snap := m.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	assert.Equal(t, "tok-1", snap.Token)
	require.NotNil(t, snap.User)
}

func TestRehydrateDerivesAuthenticatedFromPresence(t *testing.T) {
	st := store.NewMemoryStore()
	// A record claiming authentication without a user must not be trusted.
	st.Seed(store.Snapshot{Token: "tok-1", IsAuthenticated: true})

	m := newTestManager(t, st, &fakeAPI{})

	snap := m.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
	assert.Equal(t, "tok-1", snap.Token)
}

func TestSnapshotReturnsACopy(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), &fakeAPI{})
	m.SetUser(memberUser(), "tok-1")

	snap := m.Snapshot()
	snap.User.Name = "Mallory"

	assert.Equal(t, "Jane", m.Snapshot().User.Name, "callers must not mutate container state")
}

func TestTokenReflectsResets(t *testing.T) {
	m := newTestManager(t, store.NewMemoryStore(), &fakeAPI{})
	m.SetUser(memberUser(), "tok-1")
	require.Equal(t, "tok-1", m.Token())

	m.ClearAuth()
	assert.Empty(t, m.Token(), "reset must strip the bearer immediately")
}
