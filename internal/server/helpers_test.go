package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/auth/token"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/location"
	"github.com/smallbiznis/kasira/internal/observability"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

const (
	testSID  = "sid-1"
	testCSRF = "csrf-token-1"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var acme = &orgdomain.Organization{ID: "org-1", BusinessName: "Acme Coffee", Subdomain: "acme"}

type fakeOrgs struct {
	mu        sync.Mutex
	calls     []string
	res       map[string]orgdomain.Resolution
	created   *orgdomain.CreateOrganizationRequest
	createErr error
}

func (f *fakeOrgs) Resolve(_ context.Context, subdomain string) orgdomain.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, subdomain)
	if res, ok := f.res[subdomain]; ok {
		return res
	}
	return orgdomain.ResolvedNotFound()
}

func (f *fakeOrgs) Create(_ context.Context, req orgdomain.CreateOrganizationRequest) (*orgdomain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = &req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &orgdomain.Organization{ID: "org-new", BusinessName: req.BusinessName, Subdomain: req.Subdomain}, nil
}

func (f *fakeOrgs) Available(_ context.Context, subdomain string) (bool, error) {
	_, taken := f.res[subdomain]
	return !taken, nil
}

func (f *fakeOrgs) SuggestSubdomain(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}

func (f *fakeOrgs) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAuth struct {
	mu         sync.Mutex
	loginCalls int
	loginErr   error
	login      *authdomain.LoginResult
	user       *authdomain.User
}

func (f *fakeAuth) Login(context.Context, string, authdomain.LoginRequest) (*authdomain.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.login, nil
}

func (f *fakeAuth) WhoAmI(context.Context, string) (*authdomain.User, error) {
	return f.user, nil
}

type fakeLocations struct {
	locs []location.Location
}

func (f *fakeLocations) List(context.Context, string, string) ([]location.Location, error) {
	return f.locs, nil
}

// recordedRequest is what the fake backend saw.
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

type testEnv struct {
	srv       *Server
	engine    *gin.Engine
	orgs      *fakeOrgs
	auth      *fakeAuth
	locations *fakeLocations
	sessions  *session.MemoryStore
	tokens    *token.Store
	clock     *clock.FakeClock

	backendMu     sync.Mutex
	backendStatus int
	backendSeen   []recordedRequest
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		orgs: &fakeOrgs{res: map[string]orgdomain.Resolution{
			"acme": orgdomain.ResolvedFound(acme),
		}},
		auth: &fakeAuth{
			user: &authdomain.User{ID: "u-1", Name: "Ana", Email: "ana@acme.test", Role: authdomain.RoleAdmin, OrgID: "org-1"},
		},
		locations:     &fakeLocations{},
		clock:         clock.NewFakeClock(epoch),
		backendStatus: http.StatusOK,
	}
	env.sessions = session.NewMemoryStore(env.clock, time.Hour)
	env.tokens = token.NewStore(env.sessions, env.clock, 0, nil)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		env.backendMu.Lock()
		env.backendSeen = append(env.backendSeen, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		status := env.backendStatus
		env.backendMu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "backend=1")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		Environment: "test",
		Backend:     config.BackendConfig{BaseURL: upstream.URL, Timeout: 2 * time.Second},
		Session:     config.SessionConfig{TTL: time.Hour},
		RateLimit:   config.RateLimitConfig{Enabled: true, LoginRate: 1, LoginBurst: 3},
		PublicDir:   t.TempDir(),
	}
	client, err := backend.NewClient(cfg, nil)
	require.NoError(t, err)

	holder := config.NewStaticTenancyConfigHolder(config.DefaultTenancyConfig())
	bootstrapper := bootstrap.New(bootstrap.Params{
		Orgs:      env.orgs,
		Auth:      env.auth,
		Tokens:    env.tokens,
		Sessions:  env.sessions,
		Locations: env.locations,
		Tenancy:   holder,
	})

	env.engine = NewEngine(EngineParams{
		ObsCfg:  observability.Config{Environment: "test", LogLevel: "error"},
		Tenancy: holder,
	})
	env.srv = NewServer(ServerParams{
		Gin:          env.engine,
		Cfg:          cfg,
		Bootstrapper: bootstrapper,
		Orgs:         env.orgs,
		Tokens:       env.tokens,
		Sessions:     session.NewManager(cfg),
		Limiter:      ratelimit.NewLimiter(ratelimit.Params{Config: cfg, Clock: env.clock}),
		Backend:      client,
	})
	return env
}

func (env *testEnv) backendRequests() []recordedRequest {
	env.backendMu.Lock()
	defer env.backendMu.Unlock()
	return append([]recordedRequest(nil), env.backendSeen...)
}

func (env *testEnv) setBackendStatus(status int) {
	env.backendMu.Lock()
	defer env.backendMu.Unlock()
	env.backendStatus = status
}

func (env *testEnv) jwt(t *testing.T, ttl time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1",
		"exp": env.clock.Now().Add(ttl).Unix(),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

// signIn seeds testSID with a valid token bound to acme.
func (env *testEnv) signIn(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	tok := env.jwt(t, time.Hour)
	require.NoError(t, env.tokens.Set(ctx, testSID, tok))
	require.NoError(t, env.sessions.Set(ctx, testSID, session.KeyOrgID, acme.ID))
	return tok
}

type requestOption func(*http.Request)

func withSession(sid string) requestOption {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: sid})
	}
}

func withCSRFCookie() requestOption {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	}
}

func withHeader(key, value string) requestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

func (env *testEnv) do(method, target string, form url.Values, opts ...requestOption) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	value := ""
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			value = c.Value
		}
	}
	return value
}
