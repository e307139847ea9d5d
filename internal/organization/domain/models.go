// Package domain holds the organization types shared by the resolver and signup.
package domain

import "time"

// Organization is a read-only, request-scoped copy of the tenant record.
type Organization struct {
	ID           string    `json:"id"`
	BusinessName string    `json:"businessName"`
	Subdomain    string    `json:"subdomain"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateOrganizationRequest is the signup payload sent to POST /api/orgs.
type CreateOrganizationRequest struct {
	BusinessName   string `json:"businessName"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Subdomain      string `json:"subdomain"`
	MaxActiveUsers *int   `json:"maxActiveUsers,omitempty"`
	MaxStorageSize *int64 `json:"maxStorageSize,omitempty"`
}

type ResolutionKind string

const (
	Found       ResolutionKind = "found"
	NotFound    ResolutionKind = "not_found"
	Unavailable ResolutionKind = "unavailable"
)

// Resolution is the outcome of a subdomain lookup. Organization is set only
// for Found and Err only for Unavailable.
type Resolution struct {
	Kind         ResolutionKind
	Organization *Organization
	Err          error
}

func ResolvedFound(org *Organization) Resolution {
	return Resolution{Kind: Found, Organization: org}
}

func ResolvedNotFound() Resolution {
	return Resolution{Kind: NotFound}
}

func ResolvedUnavailable(err error) Resolution {
	return Resolution{Kind: Unavailable, Err: err}
}
