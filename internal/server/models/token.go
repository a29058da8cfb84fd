package models

import "time"

// Action is a row of the actions catalog ("register", "update_email", ...).
type Action struct {
	ID     int64
	Action string
}

// Token is a one-time action credential delivered by email. It only means
// something together with its email and action.
type Token struct {
	ID        int64
	Token     string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	ActionID  int64
}

// TokenWithAction is a Token joined to the name of the action it authorizes.
type TokenWithAction struct {
	Token
	Action string
}
