// Package auth contains the domain types and logic for authentication.
package auth

import (
	"time"
)

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleAdmin operates the platform.
	RoleAdmin Role = "admin"
	// RoleMerchant sells through the platform.
	RoleMerchant Role = "merchant"
	// RoleCustomer buys through the platform.
	RoleCustomer Role = "customer"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleMerchant, RoleCustomer:
		return true
	default:
		return false
	}
}

// User is an account holder known to the auth provider.
type User struct {
	// ID is a ULID assigned at sign-up.
	ID string `json:"id"`
	// Name is the display name given at sign-up.
	Name string `json:"name"`
	// Email is unique and stored lower-cased.
	Email string `json:"email"`
	// EmailVerified is set once the verification link has been followed.
	EmailVerified bool `json:"emailVerified"`
	// Image is an optional avatar URL.
	Image *string `json:"image"`
	// Role is optional; nil means no role has been assigned.
	Role *Role `json:"role,omitempty"`
	// CreatedAt is when the user signed up (UTC).
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the user was last modified (UTC).
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasRole returns true if the user has the specified role.
func (u *User) HasRole(role Role) bool {
	return u.Role != nil && *u.Role == role
}

// HasAnyRole returns true if the user has any of the specified roles.
func (u *User) HasAnyRole(roles ...Role) bool {
	for _, role := range roles {
		if u.HasRole(role) {
			return true
		}
	}
	return false
}

// ProviderCredential is the account provider for email/password sign-in.
const ProviderCredential = "credential"

// Account links a user to a sign-in provider and holds its credential.
type Account struct {
	// ID is a ULID.
	ID string
	// UserID references the owning User.
	UserID string
	// ProviderID is ProviderCredential for email/password accounts.
	ProviderID string
	// PasswordHash is an Argon2id PHC string.
	PasswordHash string
	// CreatedAt is when the account was linked (UTC).
	CreatedAt time.Time
	// UpdatedAt is when the credential last changed (UTC).
	UpdatedAt time.Time
}
