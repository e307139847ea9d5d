package domain

import "context"

// Repository talks to the backend auth endpoints.
type Repository interface {
	Login(ctx context.Context, orgID string, req LoginRequest) (*LoginResponse, error)
	WhoAmI(ctx context.Context, token string) (*AuthPayload, error)
}
