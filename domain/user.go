package domain

import (
	"context"
	"time"
)

// Role is a user's authorization role. It is snapshotted into every token at
// mint time, so a role change only takes effect once the user's tokens expire
// or are revoked.
type Role string

const (
	RoleMember    Role = "member"
	RoleLibrarian Role = "librarian"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleLibrarian, RoleAdmin:
		return true
	}
	return false
}

// User represents a library member or staff account.
type User struct {
	ID           string     `bson:"_id,omitempty"`
	Email        string     `bson:"email"`
	Name         string     `bson:"name,omitempty"`
	PasswordHash string     `bson:"password_hash"`
	Role         Role       `bson:"role"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty"`
}

// Principal is the identity attached to an authenticated request. It carries
// the role as it was at token mint time, not the live value.
type Principal struct {
	SubjectID string
	Role      Role
}

// UserRepository resolves and persists user accounts. The session core only
// touches it during sign-up and password sign-in.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
}
