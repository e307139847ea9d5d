package domain

import "context"

// Repository reads and writes organizations through the backend API.
type Repository interface {
	GetBySubdomain(ctx context.Context, subdomain string) (*Organization, error)
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
}
