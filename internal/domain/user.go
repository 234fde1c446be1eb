package domain

import (
	"errors"
	"time"
)

// User represents a bank staff member who can call the API
type User struct {
	ID             string
	Username       string
	HashedPassword string
	Role           Role
	CreatedAt      time.Time
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin can move money and provision accounts
	RoleAdmin Role = "admin"

	// RoleTeller can move money and read
	RoleTeller Role = "teller"

	// RoleAuditor can only read
	RoleAuditor Role = "auditor"
)

var validRoles = map[Role]bool{
	RoleAdmin:   true,
	RoleTeller:  true,
	RoleAuditor: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanMoveMoney checks if the role may deposit, withdraw or transfer
func (r Role) CanMoveMoney() bool {
	return r == RoleAdmin || r == RoleTeller
}

// CanManageAccounts checks if the role may provision accounts
func (r Role) CanManageAccounts() bool {
	return r == RoleAdmin
}

// Authentication errors
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrInsufficientRole   = errors.New("insufficient role for this operation")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
)
