package repository

import (
	"context"
	"net/url"

	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/organization/domain"
)

type repository struct {
	client *backend.Client
}

func NewRepository(client *backend.Client) domain.Repository {
	return &repository{client: client}
}

func (r *repository) GetBySubdomain(ctx context.Context, subdomain string) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.client.Get(ctx, "/api/orgs/"+url.PathEscape(subdomain), &org); err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	var org domain.Organization
	if err := r.client.Post(ctx, "/api/orgs", req, &org); err != nil {
		return nil, err
	}
	return &org, nil
}
