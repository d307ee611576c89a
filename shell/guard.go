package shell

import (
	"context"
	"net/http"
	"strconv"

	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/profile"
	"github.com/lingoleap/webauth/router"
)

type userContextKey struct{}

// UserFromContext returns the profile Guard attached to the request.
func UserFromContext(ctx context.Context) (profile.UserProfile, bool) {
	u, ok := ctx.Value(userContextKey{}).(profile.UserProfile)
	return u, ok
}

// RetryAfter is sent with the 503 returned while the session is hydrating.
const RetryAfter = 1

// Guard wraps a page handler with req. Redirects use 303 See Other. A
// redirect back to the requested path is answered with 403 instead.
func Guard(sess *webauth.Session, table router.Table, loginRoute router.Route, req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			d := Resolve(sess.Snapshot(), table, loginRoute, req)
			switch d.Kind {
			case Pending:
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfter))
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			case Redirect:
				if string(d.Location) == r.URL.Path {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
				http.Redirect(w, r, string(d.Location), http.StatusSeeOther)
			default:
				ctx := r.Context()
				if d.User != nil {
					ctx = context.WithValue(ctx, userContextKey{}, *d.User)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// RequireAuth guards a page for any signed-in user using the session's own
// routes.
func RequireAuth(sess *webauth.Session) func(http.Handler) http.Handler {
	return Guard(sess, sess.Routes(), sess.LoginRoute(), Requirement{Auth: Authenticated})
}

// RequireRoles guards a page for the listed roles.
func RequireRoles(sess *webauth.Session, roles ...profile.Role) func(http.Handler) http.Handler {
	return Guard(sess, sess.Routes(), sess.LoginRoute(), Requirement{Auth: Authenticated, Roles: roles})
}

// GuestOnlyPage guards login and register pages.
func GuestOnlyPage(sess *webauth.Session) func(http.Handler) http.Handler {
	return Guard(sess, sess.Routes(), sess.LoginRoute(), Requirement{Auth: GuestOnly})
}
