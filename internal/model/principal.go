package model

import "github.com/google/uuid"

type Role string

const (
	RoleCollector Role = "collector"
	RoleCustomer  Role = "customer"
	RoleAdmin     Role = "admin"
)

// Principal is the authenticated caller as established by the auth
// collaborator. The tracking core only cares whether the principal may
// report or query.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsCollector() bool {
	return p.Role == RoleCollector
}

func (p Principal) IsCustomer() bool {
	return p.Role == RoleCustomer
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
