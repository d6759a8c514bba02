package domain

import "time"

// User represents a registered account. Emails are stored lower-cased so
// uniqueness checks are case-insensitive; usernames compare case-sensitively.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	IsActive     bool
}
