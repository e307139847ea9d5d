package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/location"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMainDomainMakesNoNetworkCalls(t *testing.T) {
	h := newHarness(t)

	for _, host := range []string{"pos.com", "www.pos.com", "pos.com:8080"} {
		out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: host})
		assert.Equal(t, NoOrgContext, out.State, host)
		assert.True(t, out.Classification.IsMainDomain, host)
	}
	assert.Empty(t, h.orgs.Calls())
	assert.Zero(t, h.auth.whoamiCalls)
}

func TestRunSubdomainWithoutTokenIsLoggedOut(t *testing.T) {
	h := newHarness(t)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, LoggedOut, out.State)
	require.NotNil(t, out.Organization)
	assert.Equal(t, "org-1", out.Organization.ID)
	assert.Equal(t, []string{"acme"}, h.orgs.Calls())
	assert.Zero(t, h.auth.whoamiCalls)

	orgID, ok, err := h.sessions.Get(context.Background(), "sid", session.KeyOrgID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-1", orgID)
}

func TestRunUnknownSubdomainIsNotFoundEvenWithValidToken(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "ghost.pos.com"})

	assert.Equal(t, OrgNotFound, out.State)
	assert.Nil(t, out.Organization)
	assert.Zero(t, h.auth.whoamiCalls)
}

func TestRunTransientLookupIsUnavailable(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("connection refused")
	h.orgs.res["flaky"] = orgdomain.ResolvedUnavailable(boom)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "flaky.pos.com"})

	assert.Equal(t, OrgUnavailable, out.State)
	assert.ErrorIs(t, out.Err, boom)
}

func TestRunExpiredTokenIsDroppedBeforeWhoAmI(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", 10*time.Second)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, LoggedOut, out.State)
	assert.Zero(t, h.auth.whoamiCalls)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
}

func TestRunValidTokenAuthenticates(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, Authenticated, out.State)
	require.NotNil(t, out.User)
	assert.Equal(t, "u-1", out.User.ID)
	assert.True(t, out.SignedIn())
	assert.Equal(t, 1, h.auth.whoamiCalls)

	raw, ok, err := h.sessions.Get(context.Background(), "sid", session.KeyUser)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, `"id":"u-1"`)
}

func TestRunRejectedTokenIsCleared(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.auth.whoamiErr = authdomain.ErrSessionRejected

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, LoggedOut, out.State)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
}

func TestRunTokenFromAnotherOrganizationIsCleared(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.auth.user.OrgID = "org-2"

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, LoggedOut, out.State)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
}

func TestRunWhoAmIOutageFallsBackToCachedUser(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)

	first := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})
	require.Equal(t, Authenticated, first.State)

	h.auth.whoamiErr = authdomain.ErrUnavailable
	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, Authenticated, out.State)
	assert.True(t, out.Degraded)
	require.NotNil(t, out.User)
	assert.Equal(t, "u-1", out.User.ID)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.True(t, ok)
}

func TestRunWhoAmIClientErrorLogsOutDespiteCachedUser(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)

	first := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})
	require.Equal(t, Authenticated, first.State)

	h.auth.whoamiErr = &backend.Error{Status: http.StatusNotFound}
	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, LoggedOut, out.State)
	assert.False(t, out.Degraded)
	assert.Nil(t, out.User)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
	_, ok, err := h.sessions.Get(context.Background(), "sid", session.KeyUser)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunSwitchingOrganizationDropsCredentials(t *testing.T) {
	h := newHarness(t)
	h.orgs.res["beta"] = orgdomain.ResolvedFound(&orgdomain.Organization{ID: "org-2", Subdomain: "beta"})
	h.storeToken(t, "sid", time.Hour)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "localhost:5173", Query: url.Values{"org": {"acme"}}})
	require.Equal(t, Authenticated, out.State)

	out = h.b.Run(context.Background(), Request{SessionID: "sid", Host: "localhost:5173", Query: url.Values{"org": {"beta"}}})
	assert.Equal(t, LoggedOut, out.State)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
}

func TestRunLocalDevelopmentDefaultsToDemo(t *testing.T) {
	h := newHarness(t)

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "localhost:5173"})

	assert.True(t, out.Classification.IsLocalDevelopment)
	assert.Equal(t, OrgNotFound, out.State)
	assert.Equal(t, []string{"demo"}, h.orgs.Calls())
}

func TestRunCancelledRequestLeavesSessionUntouched(t *testing.T) {
	h := newHarness(t)
	h.orgs.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Outcome, 1)
	go func() {
		done <- h.b.Run(ctx, Request{SessionID: "sid", Host: "acme.pos.com"})
	}()
	cancel()

	out := <-done
	assert.Equal(t, Initializing, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	_, ok, err := h.sessions.Get(context.Background(), "sid", session.KeyOrgID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunMultipleLocationsRequiresSelection(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1", Name: "Downtown"}, {ID: "loc-2", Name: "Airport"}}

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, SelectingLocation, out.State)
	assert.Len(t, out.Locations, 2)
	assert.True(t, out.SignedIn())
}

func TestRunLocationListingFailureKeepsPicker(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1", Name: "Downtown"}, {ID: "loc-2", Name: "Airport"}}
	h.locations.err = errors.New("backend 503")

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, SelectingLocation, out.State)
	assert.Empty(t, out.LocationID)
	assert.Empty(t, out.Locations)
	_, ok, err := h.sessions.Get(context.Background(), "sid", session.KeyCurrentLocationID)
	require.NoError(t, err)
	assert.False(t, ok)

	h.locations.err = nil
	out = h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})
	assert.Equal(t, SelectingLocation, out.State)
	assert.Len(t, out.Locations, 2)
}

func TestLoginLocationListingFailureKeepsPicker(t *testing.T) {
	h := newHarness(t)
	h.auth.login = &authdomain.LoginResult{AccessToken: h.jwt(t, time.Hour), User: *h.auth.user}
	h.locations.err = errors.New("backend 503")

	out, err := h.b.Login(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"},
		authdomain.LoginRequest{Email: "ana@acme.test", Password: "secret"})

	require.NoError(t, err)
	assert.Equal(t, SelectingLocation, out.State)
	assert.Empty(t, out.LocationID)
}

func TestRunSingleLocationIsSelectedAutomatically(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1", Name: "Downtown"}}

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, Authenticated, out.State)
	assert.Equal(t, "loc-1", out.LocationID)
}

func TestRunNonAdminOnlySeesGrantedLocations(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.auth.user.Role = authdomain.RoleUser
	h.auth.user.Locations = []authdomain.LocationAccess{{LocationID: "loc-2"}}
	h.locations.locs = []location.Location{{ID: "loc-1"}, {ID: "loc-2"}}

	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})

	assert.Equal(t, Authenticated, out.State)
	assert.Equal(t, "loc-2", out.LocationID)
}

func TestLoginWithoutOrganizationContextMakesNoCall(t *testing.T) {
	h := newHarness(t)

	out, err := h.b.Login(context.Background(), Request{SessionID: "sid", Host: "pos.com"}, authdomain.LoginRequest{Email: "a@b.c", Password: "x"})

	assert.ErrorIs(t, err, ErrNoOrganizationContext)
	assert.Equal(t, NoOrgContext, out.State)
	assert.Zero(t, h.auth.loginCalls)
	assert.Empty(t, h.orgs.Calls())
}

func TestLoginUnknownOrganization(t *testing.T) {
	h := newHarness(t)

	_, err := h.b.Login(context.Background(), Request{SessionID: "sid", Host: "ghost.pos.com"}, authdomain.LoginRequest{})

	assert.ErrorIs(t, err, ErrOrganizationNotFound)
	assert.Zero(t, h.auth.loginCalls)
}

func TestLoginStoresCredentials(t *testing.T) {
	h := newHarness(t)
	h.auth.login = &authdomain.LoginResult{AccessToken: h.jwt(t, time.Hour), User: *h.auth.user}
	require.NoError(t, h.sessions.Set(context.Background(), "sid", session.KeyCurrentLocationID, "loc-old"))

	out, err := h.b.Login(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"}, authdomain.LoginRequest{Email: "ana@acme.test", Password: "Secret123"})

	require.NoError(t, err)
	assert.Equal(t, Authenticated, out.State)
	assert.True(t, h.tokens.HasValid(context.Background(), "sid"))
	orgID, _, _ := h.sessions.Get(context.Background(), "sid", session.KeyOrgID)
	assert.Equal(t, "org-1", orgID)
	_, ok, _ := h.sessions.Get(context.Background(), "sid", session.KeyCurrentLocationID)
	assert.False(t, ok)
}

func TestLoginInvalidCredentialsStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.auth.loginErr = authdomain.ErrInvalidCredentials

	out, err := h.b.Login(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"}, authdomain.LoginRequest{Email: "ana@acme.test", Password: "nope"})

	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
	assert.Equal(t, LoggedOut, out.State)
	_, ok := h.tokens.Get(context.Background(), "sid")
	assert.False(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	out := h.b.Run(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"})
	require.Equal(t, Authenticated, out.State)

	require.NoError(t, h.b.Logout(context.Background(), "sid"))

	for _, key := range []string{session.KeyAuthToken, session.KeyOrgID, session.KeyUser, session.KeyCurrentLocationID} {
		_, ok, err := h.sessions.Get(context.Background(), "sid", key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	assert.NoError(t, h.b.Logout(context.Background(), ""))
}

func TestSelectLocation(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1"}, {ID: "loc-2"}}
	req := Request{SessionID: "sid", Host: "acme.pos.com"}

	_, err := h.b.SelectLocation(context.Background(), req, "loc-9")
	assert.ErrorIs(t, err, location.ErrUnknownLocation)

	out, err := h.b.SelectLocation(context.Background(), req, "loc-2")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, out.State)
	assert.Equal(t, "loc-2", out.LocationID)

	out = h.b.Run(context.Background(), req)
	assert.Equal(t, Authenticated, out.State)
	assert.Equal(t, "loc-2", out.LocationID)
}

func TestSelectAllLocations(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1"}, {ID: "loc-2"}}
	req := Request{SessionID: "sid", Host: "acme.pos.com"}

	out, err := h.b.SelectLocation(context.Background(), req, "")
	require.NoError(t, err)
	assert.Empty(t, out.LocationID)

	out = h.b.Run(context.Background(), req)
	assert.Equal(t, Authenticated, out.State)
}

func TestSelectLocationRequiresSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.b.SelectLocation(context.Background(), Request{SessionID: "sid", Host: "acme.pos.com"}, "loc-1")

	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestOutcomeContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithOutcome(context.Background(), Outcome{State: LoggedOut})
	out, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, LoggedOut, out.State)
}

func TestAvailableLocationsAfterChoice(t *testing.T) {
	h := newHarness(t)
	h.storeToken(t, "sid", time.Hour)
	h.locations.locs = []location.Location{{ID: "loc-1"}, {ID: "loc-2"}}
	req := Request{SessionID: "sid", Host: "acme.pos.com"}
	_, err := h.b.SelectLocation(context.Background(), req, "loc-1")
	require.NoError(t, err)

	out := h.b.Run(context.Background(), req)
	require.Empty(t, out.Locations)

	locs, err := h.b.AvailableLocations(context.Background(), "sid", out)
	require.NoError(t, err)
	assert.Len(t, locs, 2)

	_, err = h.b.AvailableLocations(context.Background(), "sid", Outcome{State: LoggedOut})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
