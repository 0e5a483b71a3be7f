package models

import "time"

// User is an identity record. It is owned by the identity store; the auth
// core only reads it.
type User struct {
	ID           string
	Email        string
	PasswordHash *string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// Roles known to the identity store.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleEditor     = "EDITOR"
	RoleAuthor     = "AUTHOR"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleEditor, RoleAuthor:
		return true
	}
	return false
}
