package model

import (
	"database/sql"
	"time"
)

// Role enumerates the account roles recognised by the marketplace.  The
// values are stored verbatim in the users.role column and embedded in
// access-token claims, so they must never be renamed casually.
type Role string

const (
	RoleCustomer          Role = "customer"
	RoleRestaurantAdmin   Role = "restaurant_admin"
	RoleRestaurantManager Role = "restaurant_manager"
	RoleManager           Role = "manager"
	RoleAdmin             Role = "admin"
)

// AllRoles returns every known role.  Used by endpoints that are open to any
// authenticated account regardless of privilege.
func AllRoles() []Role {
	return []Role{RoleCustomer, RoleRestaurantAdmin, RoleRestaurantManager, RoleManager, RoleAdmin}
}

// ValidRole reports whether s is one of the enumerated roles.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleCustomer, RoleRestaurantAdmin, RoleRestaurantManager, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// User mirrors the 'users' table.  PasswordHash is nullable: accounts created
// through an OAuth provider never carry one, and such accounts must not log
// in with a password.
type User struct {
	ID              uint64
	PhoneNumber     string
	Email           string
	Name            string
	ProfileImageURL sql.NullString
	PasswordHash    sql.NullString
	Role            Role
	IsActive        bool
	IsBanned        bool
	OAuthProvider   sql.NullString
	PhoneVerified   bool

	// Email verification / password reset codes with their expiries.
	EmailVerificationCode sql.NullString
	EmailCodeExpiresAt    sql.NullTime
	ResetPasswordCode     sql.NullString
	ResetCodeExpiresAt    sql.NullTime
	PhoneVerificationCode sql.NullString
	PhoneCodeExpiresAt    sql.NullTime

	// Counters limiting how often verification codes may be requested.
	EmailCodeRequests    int
	EmailCodeLockedUntil sql.NullTime
	PhoneCodeRequests    int
	PhoneCodeLockedUntil sql.NullTime

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the JSON shape of a user returned to clients.  Sensitive
// columns (hashes, verification codes, counters) never leave the server.
type PublicUser struct {
	ID              uint64 `json:"id"`
	PhoneNumber     string `json:"phone_number"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	Role            Role   `json:"role"`
	IsActive        bool   `json:"is_active"`
	PhoneVerified   bool   `json:"phone_number_verified"`
	OAuthProvider   string `json:"oauth_provider,omitempty"`
}

// Public strips a User down to its client-visible fields.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		PhoneNumber:     u.PhoneNumber,
		Email:           u.Email,
		Name:            u.Name,
		ProfileImageURL: u.ProfileImageURL.String,
		Role:            u.Role,
		IsActive:        u.IsActive,
		PhoneVerified:   u.PhoneVerified,
		OAuthProvider:   u.OAuthProvider.String,
	}
}
