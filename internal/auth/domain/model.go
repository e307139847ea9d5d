// Package domain contains core types for backend-issued authentication.
package domain

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
)

// User is the session principal reported by login or whoami.
type User struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      Role             `json:"role"`
	OrgID     string           `json:"orgId"`
	Locations []LocationAccess `json:"locations,omitempty"`
}

// IsAdmin reports whether the user can act across all locations.
func (u User) IsAdmin() bool {
	return u.Role == RoleSuperAdmin || u.Role == RoleAdmin
}

// LocationAccess is one entry of the whoami locations array.
type LocationAccess struct {
	LocationID string `json:"locationId"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse mirrors POST /api/auth/login.
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	GlobalRole  Role   `json:"globalRole"`
	OrgID       string `json:"orgId"`
	Email       string `json:"email"`
}

func (r LoginResponse) User() User {
	return User{
		ID:    r.UserID,
		Name:  r.Name,
		Email: r.Email,
		Role:  r.GlobalRole,
		OrgID: r.OrgID,
	}
}

// AuthPayload mirrors GET /api/auth/whoami.
type AuthPayload struct {
	OrgID      string           `json:"orgId"`
	UserID     string           `json:"userId"`
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	GlobalRole Role             `json:"globalRole"`
	Locations  []map[string]any `json:"locations"`
}

func (p AuthPayload) User() User {
	user := User{
		ID:    p.UserID,
		Name:  p.Name,
		Email: p.Email,
		Role:  p.GlobalRole,
		OrgID: p.OrgID,
	}
	for _, raw := range p.Locations {
		access := LocationAccess{
			LocationID: firstString(raw, "locationId", "id"),
			Name:       firstString(raw, "name", "locationName"),
			Role:       firstString(raw, "role"),
		}
		if access.LocationID != "" {
			user.Locations = append(user.Locations, access)
		}
	}
	return user
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// LoginResult is what a successful login hands back to the session layer.
type LoginResult struct {
	AccessToken string
	User        User
}
