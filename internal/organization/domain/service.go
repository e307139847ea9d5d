package domain

import (
	"context"
	"errors"
)

type Service interface {
	Resolve(ctx context.Context, subdomain string) Resolution
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	Available(ctx context.Context, subdomain string) (bool, error)
	SuggestSubdomain(businessName string) string
}

var (
	ErrInvalidSubdomain    = errors.New("invalid_subdomain")
	ErrInvalidBusinessName = errors.New("invalid_business_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidPhone        = errors.New("invalid_phone")
	ErrWeakPassword        = errors.New("weak_password")
	ErrSubdomainTaken      = errors.New("subdomain_taken")
	ErrUnavailable         = errors.New("organization_service_unavailable")
)
