package bootstrap

import (
	"context"
	"errors"
	"net/url"

	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/location"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/tenancy"
)

type State string

const (
	Initializing      State = "initializing"
	NoOrgContext      State = "no_org_context"
	OrgNotFound       State = "org_not_found"
	OrgUnavailable    State = "org_unavailable"
	LoggedOut         State = "logged_out"
	SelectingLocation State = "selecting_location"
	Authenticated     State = "authenticated"
)

var (
	ErrNoOrganizationContext   = authdomain.ErrNoOrganizationContext
	ErrOrganizationNotFound    = errors.New("organization not found")
	ErrOrganizationUnavailable = errors.New("organization lookup unavailable")
	ErrNotAuthenticated        = errors.New("not authenticated")
)

// Request is the per-visit input to the bootstrapper.
type Request struct {
	SessionID string
	Host      string
	Query     url.Values
}

// Outcome is the read-only result handed to handlers and guards.
type Outcome struct {
	State          State                   `json:"state"`
	Classification tenancy.Classification  `json:"classification"`
	Organization   *orgdomain.Organization `json:"organization,omitempty"`
	User           *authdomain.User        `json:"user,omitempty"`
	Locations      []location.Location     `json:"locations,omitempty"`
	// LocationID is empty when the user works across all locations.
	LocationID string `json:"locationId"`
	// Degraded marks an authenticated outcome served from the cached user because whoami was unreachable.
	Degraded bool  `json:"degraded,omitempty"`
	Err      error `json:"-"`
}

// SignedIn is true for both authenticated states.
func (o Outcome) SignedIn() bool {
	return o.State == Authenticated || o.State == SelectingLocation
}

// HasOrganization reports whether a tenant record was resolved.
func (o Outcome) HasOrganization() bool {
	return o.Organization != nil
}

type outcomeKey struct{}

// WithOutcome stores o on ctx for downstream handlers.
func WithOutcome(ctx context.Context, o Outcome) context.Context {
	return context.WithValue(ctx, outcomeKey{}, o)
}

// FromContext returns a copy of the outcome computed for the request.
func FromContext(ctx context.Context) (Outcome, bool) {
	if ctx == nil {
		return Outcome{}, false
	}
	o, ok := ctx.Value(outcomeKey{}).(Outcome)
	return o, ok
}
