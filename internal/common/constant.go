// Package common contains shared constants and sentinel errors used across
// the auth backend.
package common

const (
	// AuthorizationHeaderName carries "Bearer <token>" on inbound requests.
	AuthorizationHeaderName = "Authorization"

	// ResetTokenHeaderName carries the password reset token.
	ResetTokenHeaderName = "X-Reset-Token"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"
)

// Well-known role names seeded at startup.
const (
	RoleAdmin        = "Admin"
	RoleBusinessUser = "Business User"
)
