package auth

// Package auth contains domain-level types for identities, profiles, and
// sessions. It is pure and free of framework/adapter concerns.

import (
	"encoding/json"
	"time"
)

// Role represents a user's application role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleCreator Role = "creator"
	RoleCompany Role = "company"
	// RoleUnset marks a profile that has not chosen a role yet.
	RoleUnset Role = ""
)

// Identity is the external provider's authoritative record of who the user is.
// Adapters map provider-specific claims into this shape; the core treats it as
// immutable input.
type Identity struct {
	ID       string    `json:"id"` // stable provider identifier (sub claim)
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
}

// Profile is the application's own record of the user, keyed 1:1 by
// Identity.ID. Fields not yet promoted to first-class columns live in Extra.
type Profile struct {
	IdentityID   string          `json:"identity_id"`
	DisplayName  string          `json:"display_name"`
	Role         Role            `json:"role"`
	Phone        string          `json:"phone"`
	Location     string          `json:"location"`
	AcademicInfo string          `json:"academic_info"`
	CompanyName  string          `json:"company_name"`
	Extra        json.RawMessage `json:"extra,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Incomplete reports whether the profile still needs onboarding. A profile
// with no role is always incomplete; a creator profile additionally needs
// name, location, phone, and academic info.
func (p Profile) Incomplete() bool {
	if p.Role == RoleUnset {
		return true
	}
	if p.Role == RoleCreator {
		return p.DisplayName == "" || p.Location == "" || p.Phone == "" || p.AcademicInfo == ""
	}
	return false
}

// Session is the artifact bundle representing "currently signed in". It is
// persisted redundantly in the in-process cache and the token store; the flag
// surface carries only the HasSession/Role projection.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Identity     Identity  `json:"identity"`
	Profile      *Profile  `json:"profile,omitempty"` // nil when no profile exists yet
	ResolvedAt   time.Time `json:"resolved_at"`       // last full resolution timestamp
}

// Role returns the session's profile role, or RoleUnset when no profile has
// been resolved.
func (s Session) Role() Role {
	if s.Profile == nil {
		return RoleUnset
	}
	return s.Profile.Role
}

// FreshWithin reports whether the session's last full resolution is within the
// given freshness window as of now.
func (s Session) FreshWithin(window time.Duration, now time.Time) bool {
	if s.ResolvedAt.IsZero() {
		return false
	}
	return now.Sub(s.ResolvedAt) <= window
}

// Flags is the middleware-visible projection of the session, used only for
// coarse routing decisions, never for authorization.
type Flags struct {
	HasSession bool `json:"has_session"`
	Role       Role `json:"role"`
}

// Route identifies a navigation target for the UI layer.
type Route string

const (
	RouteRoleSelection     Route = "role-selection"
	RouteCreatorOnboarding Route = "creator-onboarding"
	RouteCreatorHome       Route = "creator-home"
	RouteCompanyHome       Route = "company-home"
)

// State describes the outcome of a session check.
type State string

const (
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// SignInMethod selects how a sign-in flow is started.
type SignInMethod string

const (
	MethodOAuthRedirect SignInMethod = "oauth_redirect"
	MethodMagicLink     SignInMethod = "magic_link"
)
