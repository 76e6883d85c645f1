package auth

import "time"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleClient   Role = "client"
)

// Account is the domain representation of an authenticated actor. It mirrors
// the accounts table and carries no JSON annotations so it can be reused by
// different presentation layers.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the verified identity attached to a workflow transition. Its ID
// feeds the audit trail.
type Actor struct {
	ID   string
	Role Role
}

// CanForce reports whether the actor may apply forced transitions
// (forceAccept, forceDeliver).
func (a Actor) CanForce() bool {
	return a.Role == RoleAdmin
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
