// Package location lists the store locations a signed-in user can work from.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/kasira/internal/backend"
	"go.uber.org/fx"
)

var Module = fx.Module("location",
	fx.Provide(
		NewService,
		func(s *Service) Lister { return s },
	),
)

var (
	ErrUnauthorized    = errors.New("location listing unauthorized")
	ErrUnknownLocation = errors.New("unknown location")
)

type Location struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Lister is the read side used by the session bootstrapper.
type Lister interface {
	List(ctx context.Context, token, subdomain string) ([]Location, error)
}

type Service struct {
	client *backend.Client
}

func NewService(client *backend.Client) *Service {
	return &Service{client: client}
}

func (s *Service) List(ctx context.Context, token, subdomain string) ([]Location, error) {
	var out []Location
	err := s.client.Get(ctx, "/api/locations", &out,
		backend.WithBearer(token),
		backend.WithHeader(backend.HeaderOrgSubdomain, subdomain),
	)
	if err != nil {
		if backend.IsUnauthorized(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// Find returns the location with id from locs.
func Find(locs []Location, id string) (Location, bool) {
	id = strings.TrimSpace(id)
	for _, loc := range locs {
		if loc.ID == id {
			return loc, true
		}
	}
	return Location{}, false
}
