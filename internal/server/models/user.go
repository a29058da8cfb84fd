// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account row. Password holds the salted digest, never the clear
// text.
type User struct {
	ID        int64
	UserName  string
	Email     string
	Password  string
	CreatedAt time.Time
	UpdatedAt *time.Time
}
