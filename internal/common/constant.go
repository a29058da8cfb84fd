// Package common contains shared constants and sentinel errors used across
// account service components.
package common

// AccessTokenCookieName is the cookie (and JSON field) carrying the bearer
// access token between the HTTP layer and its clients.
const AccessTokenCookieName = "access_token"

// Action names stored in the actions catalog.
const (
	ActionRegister    = "register"
	ActionUpdateEmail = "update_email"
)
