package models

import "time"

// User is an administrative operator account, authenticated out of band by
// AdminFacade's transport (see internal/auth); password storage is bcrypt.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
