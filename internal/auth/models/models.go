package models

import (
	"time"

	dErrors "taskdesk/pkg/domain-errors"
)

// Role is the closed set of authorization roles a token may carry.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
	RoleBoss  Role = "BOSS"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleBoss:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole validates a role string against the fixed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: must be USER, ADMIN, or BOSS")
	}
	return r, nil
}

// User is an account record. The password never leaves the store as
// plaintext; only the bcrypt digest is held.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
