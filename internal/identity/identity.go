// Package identity models the authenticated principal and the tri-state
// resolution of the browser session that may carry one.
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrUnknownRole is returned when a stored role is not part of the closed set.
var ErrUnknownRole = errors.New("identity: unknown role")

// Role is the closed set of roles an identity may hold. The zero value means
// "no role" and is only used as an absent requirement.
type Role uint8

const (
	// RoleClient is the default role for every registered investor.
	RoleClient Role = iota + 1
	// RoleAdmin grants access to the back office.
	RoleAdmin
)

const (
	clientHome = "/dashboard"
	adminHome  = "/admin"
)

// ParseRole converts a stored role attribute into a Role.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "client":
		return RoleClient, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, ErrUnknownRole
	}
}

// String returns the stored representation of the role.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleAdmin:
		return "admin"
	default:
		return ""
	}
}

// Valid reports whether r belongs to the closed set.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// Home is the dashboard root an identity with this role lands on.
func (r Role) Home() string {
	if r == RoleAdmin {
		return adminHome
	}
	return clientHome
}

// Identity is the authenticated principal.
type Identity struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	Role        Role
}

// Greeting returns the name used to welcome the identity.
func (i Identity) Greeting() string {
	if name := strings.TrimSpace(i.DisplayName); name != "" {
		return name
	}
	return "Investidor"
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Kind enumerates the session resolution states.
type Kind uint8

const (
	// KindUnresolved means the session is still loading.
	KindUnresolved Kind = iota
	// KindAbsent means no identity is attached to the session.
	KindAbsent
	// KindPresent means an identity is attached to the session.
	KindPresent
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindPresent:
		return "present"
	default:
		return "unresolved"
	}
}

// State is an immutable snapshot of session resolution. The zero value is
// Unresolved.
type State struct {
	kind     Kind
	identity Identity
}

// Unresolved returns the initial loading state.
func Unresolved() State {
	return State{kind: KindUnresolved}
}

// Absent returns the state of a session without identity.
func Absent() State {
	return State{kind: KindAbsent}
}

// Present returns the state of a session carrying id.
func Present(id Identity) State {
	return State{kind: KindPresent, identity: id}
}

// Kind returns the state discriminator.
func (s State) Kind() Kind {
	return s.kind
}

// Resolved reports whether the session finished loading.
func (s State) Resolved() bool {
	return s.kind != KindUnresolved
}

// Identity returns the attached identity when the state is Present.
func (s State) Identity() (Identity, bool) {
	if s.kind != KindPresent {
		return Identity{}, false
	}
	return s.identity, true
}

// Role returns the role of the attached identity or the zero Role.
func (s State) Role() Role {
	if s.kind != KindPresent {
		return 0
	}
	return s.identity.Role
}

func (s State) String() string {
	if s.kind == KindPresent {
		return "present(" + s.identity.ID.String() + ")"
	}
	return s.kind.String()
}
