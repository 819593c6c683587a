package models

import "time"

// Role is the closed set of access levels a user can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the persisted user record. PasswordHash and the reset-token fields
// never leave the server; callers that return a user to a client must go
// through Public.
//
// ResetTokenHash and ResetTokenExpiresAt are either both set or both nil.
type User struct {
	ID                  string
	Name                string
	Email               string
	PasswordHash        []byte
	PasswordChangedAt   *time.Time
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	Role                Role
	CreatedAt           time.Time
}

// PublicUser is the client-facing projection of a User. It structurally omits
// the password hash and reset-token fields, so they cannot be serialized by
// accident.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public strips the secret fields from the record.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// PasswordChangedAfter reports whether the password was changed after t.
// It is used to reject session tokens issued before the most recent password
// change. A user that has never changed their password always returns false.
func (u *User) PasswordChangedAfter(t time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.After(t)
}
