package shell

import (
	"slices"

	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/profile"
	"github.com/lingoleap/webauth/router"
)

// AuthRequirement says who may see a page.
type AuthRequirement uint8

const (
	// Public pages render for everyone.
	Public AuthRequirement = iota
	// Authenticated pages need a signed-in user.
	Authenticated
	// GuestOnly pages are for anonymous users, such as login and register.
	GuestOnly
)

func (a AuthRequirement) String() string {
	switch a {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case GuestOnly:
		return "guest-only"
	default:
		return "unknown"
	}
}

// Requirement describes one page. A non-empty Roles list implies Authenticated.
type Requirement struct {
	Auth  AuthRequirement
	Roles []profile.Role
}

// Kind is the outcome of Resolve.
type Kind uint8

const (
	// Render means the page may be shown.
	Render Kind = iota
	// Pending means the session is not hydrated yet.
	Pending
	// Redirect means the user belongs elsewhere; see Decision.Location.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Render:
		return "render"
	case Pending:
		return "pending"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is what a shell does with a request.
type Decision struct {
	Kind     Kind
	Location router.Route
	User     *profile.UserProfile
}

// Resolve decides how a page with requirement req is handled for view.
func Resolve(view webauth.Snapshot, table router.Table, loginRoute router.Route, req Requirement) Decision {
	if !view.State.Settled() {
		return Decision{Kind: Pending}
	}

	needsAuth := req.Auth == Authenticated || len(req.Roles) > 0
	if !view.IsAuthenticated() {
		if needsAuth {
			return Decision{Kind: Redirect, Location: loginRoute}
		}
		return Decision{Kind: Render}
	}

	user := view.User
	if req.Auth == GuestOnly {
		return Decision{Kind: Redirect, Location: table.For(user.Role), User: user}
	}
	if len(req.Roles) > 0 && !slices.Contains(req.Roles, user.Role) {
		return Decision{Kind: Redirect, Location: table.For(user.Role), User: user}
	}
	return Decision{Kind: Render, User: user}
}
