// Package bootstrap decides, per visit, which top-level screen a visitor gets:
// public landing, organization not found, login, location selection or the app.
// It is the only writer of session state.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/auth/token"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/location"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var Module = fx.Module("bootstrap",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Orgs      orgdomain.Service
	Auth      authdomain.Service
	Tokens    *token.Store
	Sessions  session.Store
	Locations location.Lister
	Tenancy   *config.TenancyConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

type Bootstrapper struct {
	orgs      orgdomain.Service
	auth      authdomain.Service
	tokens    *token.Store
	sessions  session.Store
	locations location.Lister
	tenancy   *config.TenancyConfigHolder
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func New(p Params) *Bootstrapper {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrapper{
		orgs:      p.Orgs,
		auth:      p.Auth,
		tokens:    p.Tokens,
		sessions:  p.Sessions,
		locations: p.Locations,
		tenancy:   p.Tenancy,
		metrics:   p.Metrics,
		log:       log.Named("bootstrap"),
	}
}

// Rules returns the current hostname rules.
func (b *Bootstrapper) Rules() tenancy.Rules {
	return tenancy.FromConfig(b.tenancy.Get())
}

// Classify parses the request host without touching the network.
func (b *Bootstrapper) Classify(req Request) tenancy.Classification {
	return tenancy.Parse(req.Host, req.Query, b.Rules())
}

// Run evaluates the visit. Organization resolution always precedes token checks.
// A cancelled ctx yields Initializing with Err set and leaves the session untouched.
func (b *Bootstrapper) Run(ctx context.Context, req Request) Outcome {
	out := b.run(ctx, req)
	if out.State != Initializing {
		b.metrics.RecordBootstrap(ctx, string(out.State))
	}
	return out
}

func (b *Bootstrapper) run(ctx context.Context, req Request) Outcome {
	out := Outcome{State: Initializing, Classification: b.Classify(req)}
	if !out.Classification.RequiresOrganization() {
		out.State = NoOrgContext
		return out
	}

	org, done := b.resolve(ctx, &out)
	if done {
		return out
	}
	if stale(ctx, &out) {
		return out
	}
	b.bindOrganization(ctx, req.SessionID, org)

	b.tokens.Initialize(ctx, req.SessionID)
	accessToken, ok := b.tokens.Get(ctx, req.SessionID)
	if !ok || !b.tokens.Valid(accessToken) {
		out.State = LoggedOut
		return out
	}

	chosen, hasChoice := b.currentLocation(ctx, req.SessionID)

	var (
		user   *authdomain.User
		locs   []location.Location
		locErr error
	)
	// a whoami failure must not abort the listing
	var g errgroup.Group
	g.Go(func() error {
		var err error
		user, err = b.auth.WhoAmI(ctx, accessToken)
		return err
	})
	if !hasChoice {
		g.Go(func() error {
			locs, locErr = b.listLocations(ctx, accessToken, org.Subdomain)
			return nil
		})
	}
	err := g.Wait()
	if stale(ctx, &out) {
		return out
	}

	if err == nil && (user == nil || (user.OrgID != "" && user.OrgID != org.ID)) {
		err = authdomain.ErrSessionRejected
	}
	switch {
	case err == nil:
	case errors.Is(err, authdomain.ErrUnavailable):
		cached := b.cachedUser(ctx, req.SessionID)
		if cached == nil {
			logger.WithContext(ctx, b.log).Warn("whoami unavailable", zap.Error(err))
			out.State = LoggedOut
			out.Err = err
			return out
		}
		user = cached
		out.Degraded = true
		out.Err = err
	default:
		b.clearCredentials(ctx, req.SessionID)
		out.State = LoggedOut
		return out
	}

	out.User = user
	b.cacheUser(ctx, req.SessionID, user)
	out.LocationID = chosen
	if !hasChoice {
		b.applyLocationStep(ctx, req.SessionID, &out, locs, locErr)
	} else {
		out.State = Authenticated
	}
	return out
}

// Login authenticates against the organization bound to the host.
func (b *Bootstrapper) Login(ctx context.Context, req Request, creds authdomain.LoginRequest) (Outcome, error) {
	out := Outcome{State: Initializing, Classification: b.Classify(req)}
	if !out.Classification.RequiresOrganization() {
		out.State = NoOrgContext
		return out, ErrNoOrganizationContext
	}

	org, done := b.resolve(ctx, &out)
	if done {
		if out.State == OrgNotFound {
			return out, ErrOrganizationNotFound
		}
		return out, fmt.Errorf("%w: %v", ErrOrganizationUnavailable, out.Err)
	}
	out.State = LoggedOut

	res, err := b.auth.Login(ctx, org.ID, creds)
	if err != nil {
		return out, err
	}
	if stale(ctx, &out) {
		return out, ctx.Err()
	}

	sid := req.SessionID
	if err := b.tokens.Set(ctx, sid, res.AccessToken); err != nil {
		return out, fmt.Errorf("store token: %w", err)
	}
	b.setValue(ctx, sid, session.KeyOrgID, org.ID)
	b.deleteValues(ctx, sid, session.KeyCurrentLocationID)
	out.Organization = org

	user := res.User
	b.cacheUser(ctx, sid, &user)
	out.User = &user

	locs, locErr := b.listLocations(ctx, res.AccessToken, org.Subdomain)
	b.applyLocationStep(ctx, sid, &out, locs, locErr)

	logger.WithContext(ctx, b.log).Info("login succeeded",
		logger.Session(sid),
		zap.String("org_id", org.ID),
		zap.String("user_id", user.ID),
		zap.String("state", string(out.State)),
	)
	b.metrics.RecordBootstrap(ctx, string(out.State))
	return out, nil
}

// Logout clears every session value synchronously. Navigation is the caller's job.
func (b *Bootstrapper) Logout(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	if err := b.sessions.Destroy(ctx, sid); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// SelectLocation records the working location. An empty id selects all locations.
func (b *Bootstrapper) SelectLocation(ctx context.Context, req Request, locationID string) (Outcome, error) {
	out := b.Run(ctx, req)
	if !out.SignedIn() {
		return out, ErrNotAuthenticated
	}

	if locationID != "" {
		accessToken, _ := b.tokens.Get(ctx, req.SessionID)
		locs := out.Locations
		if len(locs) == 0 {
			var err error
			locs, err = b.locations.List(ctx, accessToken, out.Organization.Subdomain)
			if err != nil {
				return out, err
			}
		}
		locs = accessible(out.User, locs)
		if _, ok := location.Find(locs, locationID); !ok {
			return out, location.ErrUnknownLocation
		}
		out.Locations = locs
	}

	if err := b.sessions.Set(ctx, req.SessionID, session.KeyCurrentLocationID, locationID); err != nil {
		return out, fmt.Errorf("store location: %w", err)
	}
	out.LocationID = locationID
	out.State = Authenticated
	return out, nil
}

// AvailableLocations lists the locations the signed-in user may pick from.
func (b *Bootstrapper) AvailableLocations(ctx context.Context, sid string, out Outcome) ([]location.Location, error) {
	if !out.SignedIn() || out.Organization == nil {
		return nil, ErrNotAuthenticated
	}
	if len(out.Locations) > 0 {
		return out.Locations, nil
	}
	accessToken, ok := b.tokens.Get(ctx, sid)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	locs, err := b.locations.List(ctx, accessToken, out.Organization.Subdomain)
	if err != nil {
		return nil, err
	}
	return accessible(out.User, locs), nil
}

func (b *Bootstrapper) resolve(ctx context.Context, out *Outcome) (*orgdomain.Organization, bool) {
	res := b.orgs.Resolve(ctx, out.Classification.Subdomain)
	if stale(ctx, out) {
		return nil, true
	}
	switch res.Kind {
	case orgdomain.Found:
		out.Organization = res.Organization
		return res.Organization, false
	case orgdomain.NotFound:
		out.State = OrgNotFound
	default:
		out.State = OrgUnavailable
		out.Err = res.Err
	}
	return nil, true
}

// bindOrganization drops credentials that belong to a different organization.
func (b *Bootstrapper) bindOrganization(ctx context.Context, sid string, org *orgdomain.Organization) {
	if sid == "" {
		return
	}
	previous, ok, err := b.sessions.Get(ctx, sid, session.KeyOrgID)
	if err != nil || (ok && previous == org.ID) {
		return
	}
	if ok && previous != "" {
		b.clearCredentials(ctx, sid)
	}
	b.setValue(ctx, sid, session.KeyOrgID, org.ID)
}

// applyLocationStep picks the next state for a session without a stored location.
// An unknown location list keeps the visitor at the picker.
func (b *Bootstrapper) applyLocationStep(ctx context.Context, sid string, out *Outcome, locs []location.Location, listErr error) {
	if listErr != nil {
		out.Locations = nil
		out.State = SelectingLocation
		return
	}
	locs = accessible(out.User, locs)
	out.Locations = locs
	switch {
	case len(locs) > 1:
		out.State = SelectingLocation
	case len(locs) == 1:
		out.LocationID = locs[0].ID
		b.setValue(ctx, sid, session.KeyCurrentLocationID, locs[0].ID)
		out.State = Authenticated
	default:
		out.State = Authenticated
	}
}

func (b *Bootstrapper) listLocations(ctx context.Context, accessToken, subdomain string) ([]location.Location, error) {
	if b.locations == nil {
		return nil, nil
	}
	locs, err := b.locations.List(ctx, accessToken, subdomain)
	if err != nil {
		logger.WithContext(ctx, b.log).Warn("list locations failed", zap.Error(err))
		return nil, err
	}
	return locs, nil
}

func (b *Bootstrapper) currentLocation(ctx context.Context, sid string) (string, bool) {
	if sid == "" {
		return "", false
	}
	id, ok, err := b.sessions.Get(ctx, sid, session.KeyCurrentLocationID)
	if err != nil {
		return "", false
	}
	return id, ok
}

func (b *Bootstrapper) clearCredentials(ctx context.Context, sid string) {
	if err := b.tokens.Remove(ctx, sid); err != nil {
		logger.WithContext(ctx, b.log).Warn("remove token failed", logger.Session(sid), zap.Error(err))
	}
	b.deleteValues(ctx, sid, session.KeyUser, session.KeyCurrentLocationID)
}

func (b *Bootstrapper) cachedUser(ctx context.Context, sid string) *authdomain.User {
	raw, ok, err := b.sessions.Get(ctx, sid, session.KeyUser)
	if err != nil || !ok || raw == "" {
		return nil
	}
	var user authdomain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil
	}
	return &user
}

func (b *Bootstrapper) cacheUser(ctx context.Context, sid string, user *authdomain.User) {
	if user == nil {
		return
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	b.setValue(ctx, sid, session.KeyUser, string(raw))
}

func (b *Bootstrapper) setValue(ctx context.Context, sid, key, value string) {
	if sid == "" {
		return
	}
	if err := b.sessions.Set(ctx, sid, key, value); err != nil {
		logger.WithContext(ctx, b.log).Warn("session write failed", zap.String("key", key), zap.Error(err))
	}
}

func (b *Bootstrapper) deleteValues(ctx context.Context, sid string, keys ...string) {
	if sid == "" {
		return
	}
	if err := b.sessions.Delete(ctx, sid, keys...); err != nil {
		logger.WithContext(ctx, b.log).Warn("session delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// accessible narrows locs to the grants of a non-admin user. Users without
// explicit grants see every location.
func accessible(user *authdomain.User, locs []location.Location) []location.Location {
	if user == nil || user.IsAdmin() || len(user.Locations) == 0 {
		return locs
	}
	granted := make(map[string]struct{}, len(user.Locations))
	for _, access := range user.Locations {
		granted[access.LocationID] = struct{}{}
	}
	out := make([]location.Location, 0, len(locs))
	for _, loc := range locs {
		if _, ok := granted[loc.ID]; ok {
			out = append(out, loc)
		}
	}
	return out
}

// stale marks out as abandoned when the caller has gone away.
func stale(ctx context.Context, out *Outcome) bool {
	if err := ctx.Err(); err != nil {
		out.State = Initializing
		out.Organization = nil
		out.Err = err
		return true
	}
	return false
}
