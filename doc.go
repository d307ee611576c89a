// Package webauth is the client side of the platform's authentication: it
// keeps the signed-in user and bearer token, persists them in a token store,
// and sends API requests that carry the token.
//
// A [Session] is built with [Builder] and restored with [Session.Hydrate]. It
// moves through UNINITIALIZED, HYDRATING and then AUTHENTICATED or ANONYMOUS;
// Login and Logout switch between the last two. Every read sees the user and
// the authenticated flag together.
//
// A [Client] wraps net/http. It attaches the token and, when the platform
// answers 401, logs the session out and sends the user to the login route
// through a [Navigator]. Concurrent 401s for the same credential produce a
// single logout and a single redirect.
//
// # Architecture boundaries
//
// webauth is the public surface. Storage backends live in store/, the profile
// model in profile/, role routing in router/, page gating in shell/, and audit
// dispatch in internal/audit.
//
// # What this package must NOT do
//
//   - Log or audit raw tokens; only a fingerprint is logged.
//   - Perform I/O in Builder.Build.
//   - Keep package-level session state; every Session is independent.
package webauth
