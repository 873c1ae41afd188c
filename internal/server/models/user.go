// Package models holds the persistent records of the auth backend.
package models

import (
	"strconv"
	"strings"
	"time"
)

type Role struct {
	ID          int64
	Name        string
	Description string
}

// User is a stored account. PasswordHash is always produced by the password
// hasher; a nil PasswordChangedAt means the password was never changed and no
// cooldown applies.
type User struct {
	ID                int64
	FirstName         string
	LastName          string
	Email             string
	PasswordHash      string
	PasswordChangedAt *time.Time
	IsActive          bool
	ApprovedAt        *time.Time
	Role              *Role
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RoleName returns the assigned role name or "" for unassigned users.
func (u *User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Username is the display handle "id<ID>_<local part of email>".
func (u *User) Username() string {
	local, _, _ := strings.Cut(u.Email, "@")
	return "id" + strconv.FormatInt(u.ID, 10) + "_" + local
}
