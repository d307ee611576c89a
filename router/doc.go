// Package router maps a user's role to the route the client lands on after
// authentication.
//
// The mapping is total and pure: every role, including values outside the closed
// set, resolves to a route, and resolution never fails or performs I/O.
package router
