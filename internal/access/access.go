// Package access decides which principals may run which operation on which
// entity. The decision is a lookup in a fixed table; nothing else is consulted.
package access

import (
	"errors"
	"fmt"
)

type Entity string

const (
	Plant           Entity = "plant"
	MaintenanceTask Entity = "maintenance_task"
)

type Operation string

const (
	List          Operation = "list"
	Details       Operation = "details"
	Create        Operation = "create"
	Edit          Operation = "edit"
	Delete        Operation = "delete"
	ConfirmDelete Operation = "confirm-delete"
)

type Capability int

const (
	Anonymous Capability = iota
	Admin
)

func (c Capability) String() string {
	if c == Anonymous {
		return "anonymous"
	}
	return "admin"
}

const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type Principal struct {
	Authenticated bool
	Email         string
	Roles         []string
}

func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AnonymousPrincipal is the caller with no session.
var AnonymousPrincipal = Principal{}

type key struct {
	entity    Entity
	operation Operation
}

// Policy maps (entity, operation) to the capability the caller needs.
type Policy struct {
	rules map[key]Capability
}

// DefaultPolicy lets anyone list and read, and reserves every write for
// admins.
func DefaultPolicy() *Policy {
	p := &Policy{rules: map[key]Capability{}}
	for _, entity := range []Entity{Plant, MaintenanceTask} {
		p.rules[key{entity, List}] = Anonymous
		p.rules[key{entity, Details}] = Anonymous
		for _, op := range []Operation{Create, Edit, Delete, ConfirmDelete} {
			p.rules[key{entity, op}] = Admin
		}
	}
	return p
}

// Required returns the capability for the pair. Pairs missing from the table
// require Admin.
func (p *Policy) Required(entity Entity, op Operation) Capability {
	if capability, ok := p.rules[key{entity, op}]; ok {
		return capability
	}
	return Admin
}

// Authorize returns nil when principal may perform op on entity,
// ErrUnauthenticated when it must sign in first and ErrForbidden otherwise.
func (p *Policy) Authorize(principal Principal, entity Entity, op Operation) error {
	switch p.Required(entity, op) {
	case Anonymous:
		return nil
	default:
		if !principal.Authenticated {
			return fmt.Errorf("%s %s: %w", op, entity, ErrUnauthenticated)
		}
		if !principal.HasRole(RoleAdmin) {
			return fmt.Errorf("%s %s: %w", op, entity, ErrForbidden)
		}
		return nil
	}
}
