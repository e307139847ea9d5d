package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/auth/token"
	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/location"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeOrgs struct {
	mu    sync.Mutex
	calls []string
	res   map[string]orgdomain.Resolution
	block chan struct{}
}

func (f *fakeOrgs) Resolve(ctx context.Context, subdomain string) orgdomain.Resolution {
	f.mu.Lock()
	f.calls = append(f.calls, subdomain)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return orgdomain.ResolvedUnavailable(ctx.Err())
		}
	}
	if res, ok := f.res[subdomain]; ok {
		return res
	}
	return orgdomain.ResolvedNotFound()
}

func (f *fakeOrgs) Create(context.Context, orgdomain.CreateOrganizationRequest) (*orgdomain.Organization, error) {
	return nil, nil
}

func (f *fakeOrgs) Available(context.Context, string) (bool, error) { return true, nil }

func (f *fakeOrgs) SuggestSubdomain(string) string { return "" }

func (f *fakeOrgs) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAuth struct {
	mu          sync.Mutex
	loginCalls  int
	whoamiCalls int
	loginErr    error
	login       *authdomain.LoginResult
	whoamiErr   error
	user        *authdomain.User
}

func (f *fakeAuth) Login(_ context.Context, orgID string, _ authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.login, nil
}

func (f *fakeAuth) WhoAmI(context.Context, string) (*authdomain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whoamiCalls++
	if f.whoamiErr != nil {
		return nil, f.whoamiErr
	}
	return f.user, nil
}

type fakeLocations struct {
	locs []location.Location
	err  error
}

func (f *fakeLocations) List(context.Context, string, string) ([]location.Location, error) {
	return f.locs, f.err
}

type harness struct {
	b         *Bootstrapper
	orgs      *fakeOrgs
	auth      *fakeAuth
	locations *fakeLocations
	sessions  *session.MemoryStore
	tokens    *token.Store
	clock     *clock.FakeClock
}

var acme = &orgdomain.Organization{ID: "org-1", BusinessName: "Acme Coffee", Subdomain: "acme"}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clk := clock.NewFakeClock(epoch)
	sessions := session.NewMemoryStore(clk, time.Hour)
	tokens := token.NewStore(sessions, clk, 0, nil)
	h := &harness{
		orgs: &fakeOrgs{res: map[string]orgdomain.Resolution{
			"acme": orgdomain.ResolvedFound(acme),
		}},
		auth: &fakeAuth{
			user: &authdomain.User{ID: "u-1", Name: "Ana", Email: "ana@acme.test", Role: authdomain.RoleAdmin, OrgID: "org-1"},
		},
		locations: &fakeLocations{},
		sessions:  sessions,
		tokens:    tokens,
		clock:     clk,
	}
	h.b = New(Params{
		Orgs:      h.orgs,
		Auth:      h.auth,
		Tokens:    tokens,
		Sessions:  sessions,
		Locations: h.locations,
		Tenancy:   config.NewStaticTenancyConfigHolder(config.DefaultTenancyConfig()),
	})
	return h
}

func (h *harness) jwt(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": h.clock.Now().Add(ttl).Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func (h *harness) storeToken(t *testing.T, sid string, ttl time.Duration) string {
	t.Helper()
	tok := h.jwt(t, ttl)
	require.NoError(t, h.tokens.Set(context.Background(), sid, tok))
	return tok
}
