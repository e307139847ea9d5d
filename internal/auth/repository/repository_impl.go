package repository

import (
	"context"

	"github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/backend"
)

type repository struct {
	client *backend.Client
}

func New(client *backend.Client) domain.Repository {
	return &repository{client: client}
}

func (r *repository) Login(ctx context.Context, orgID string, req domain.LoginRequest) (*domain.LoginResponse, error) {
	var resp domain.LoginResponse
	err := r.client.Post(ctx, "/api/auth/login", req, &resp, backend.WithHeader(backend.HeaderOrgID, orgID))
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *repository) WhoAmI(ctx context.Context, token string) (*domain.AuthPayload, error) {
	var payload domain.AuthPayload
	if err := r.client.Get(ctx, "/api/auth/whoami", &payload, backend.WithBearer(token)); err != nil {
		return nil, err
	}
	return &payload, nil
}
