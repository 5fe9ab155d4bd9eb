package model

import "time"

// User is an account whose mailbox is swept for purchase emails.
// RefreshToken grants readonly access to the user's mail provider.
type User struct {
	CreatedAt    time.Time
	Email        string
	RefreshToken string
	ID           int64
}
