// Package guard decides whether a request may see a protected page given the
// session state of the requester.
package guard

import (
	"github.com/atlas-capital/atlas-portal/internal/identity"
)

// LoginPath is the sign-in entry point unauthenticated requests are sent to.
const LoginPath = "/login"

// Requirement is the static access metadata attached to a route.
type Requirement struct {
	RequiresAuth bool
	// RequiresRole is the zero Role when any signed-in identity is admitted.
	RequiresRole identity.Role
}

// Public admits everyone.
var Public = Requirement{}

// Authenticated admits any signed-in identity.
var Authenticated = Requirement{RequiresAuth: true}

// AdminOnly admits signed-in administrators.
var AdminOnly = Requirement{RequiresAuth: true, RequiresRole: identity.RoleAdmin}

// Kind enumerates guard outcomes.
type Kind uint8

const (
	Allow Kind = iota
	Pending
	RedirectLogin
	RedirectHome
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Pending:
		return "pending"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Decide. Location is set for redirects.
type Decision struct {
	Kind     Kind
	Location string
}

// Redirect reports whether the decision sends the requester elsewhere.
func (d Decision) Redirect() bool {
	return d.Kind == RedirectLogin || d.Kind == RedirectHome
}

// Decide is a pure function of the session state and the route requirement.
// An unresolved state never produces a redirect.
func Decide(state identity.State, req Requirement) Decision {
	if !req.RequiresAuth {
		return Decision{Kind: Allow}
	}
	switch state.Kind() {
	case identity.KindUnresolved:
		return Decision{Kind: Pending}
	case identity.KindAbsent:
		return Decision{Kind: RedirectLogin, Location: LoginPath}
	}
	role := state.Role()
	if req.RequiresRole != 0 && role != req.RequiresRole {
		return Decision{Kind: RedirectHome, Location: role.Home()}
	}
	return Decision{Kind: Allow}
}
