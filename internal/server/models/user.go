// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the credential record. It is never exposed through the row store.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Profile is the user-visible account record.
type Profile struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone"`
	AvatarURL *string `json:"avatar_url"`
	Locale    string  `json:"locale"`
}

// Account joins a credential with its profile and tenant role.
type Account struct {
	User    User
	Profile Profile
	Role    string
}
