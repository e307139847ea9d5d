package domain

import "context"

type Service interface {
	Login(ctx context.Context, orgID string, req LoginRequest) (*LoginResult, error)
	WhoAmI(ctx context.Context, token string) (*User, error)
}
