// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.
package auth

import "strings"

// Role represents an application's authorization role.
// Keep string form for easy persistence.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Status represents whether an account may use the application.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// ParseRole maps any string onto one of the two roles. Anything that is not
// "admin" (case-insensitive) is a plain user.
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// ParseStatus maps any string onto one of the two statuses. Empty means active.
func ParseStatus(s string) Status {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(StatusActive)) {
		return StatusActive
	}
	return StatusSuspended
}

// Identity is the normalized authenticated principal.
// Role and Status always hold one of their enumerated values once produced by NormalizeUser.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	FullName  string `json:"fullName"`
	Role      Role   `json:"role"`
	Status    Status `json:"status"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsActive reports whether the identity is not suspended.
func (i Identity) IsActive() bool { return i.Status == StatusActive }

// DisplayName returns the full name, falling back to the email.
func (i Identity) DisplayName() string {
	if i.FullName != "" {
		return i.FullName
	}
	return i.Email
}

// Sanitized returns the copy NormalizeUser would produce from this identity's own
// JSON: fields trimmed, Role and Status coerced into their enumerations and FullName
// derived when empty. The session store persists identities in this form so a reload
// yields an equal value.
func (i Identity) Sanitized() Identity {
	i.ID = strings.TrimSpace(i.ID)
	i.Email = strings.TrimSpace(i.Email)
	i.FirstName = strings.TrimSpace(i.FirstName)
	i.LastName = strings.TrimSpace(i.LastName)
	i.FullName = strings.TrimSpace(i.FullName)
	i.Role = ParseRole(string(i.Role))
	i.Status = ParseStatus(string(i.Status))
	if i.FullName == "" {
		i.FullName = fullNameFallback(i.FirstName, i.LastName, "", i.Email)
	}
	return i
}

// State is the session state a guard reasons about.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticatedUser
	StateAuthenticatedAdmin
)

func (s State) String() string {
	switch s {
	case StateAuthenticatedUser:
		return "authenticated_user"
	case StateAuthenticatedAdmin:
		return "authenticated_admin"
	default:
		return "anonymous"
	}
}

// Session pairs the identity with the bearer credential.
// Steady state is both present or both absent.
type Session struct {
	Identity   *Identity
	Credential string
}

// Authenticated reports whether an identity is present.
func (s Session) Authenticated() bool { return s.Identity != nil }

// State derives the guard state from the session.
func (s Session) State() State {
	switch {
	case s.Identity == nil:
		return StateAnonymous
	case s.Identity.IsAdmin():
		return StateAuthenticatedAdmin
	default:
		return StateAuthenticatedUser
	}
}
