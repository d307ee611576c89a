// Package jwt reads the claims of access tokens the platform issues and, for local
// tooling and tests, issues tokens of the same shape.
//
// The client never holds the platform's verification key, so Inspect does not
// verify signatures. It is only used to skip restoring a session whose token has
// plainly expired. The server stays the authority on whether a token is valid.
//
// # What this package must NOT do
//
//   - Treat an Inspect result as proof of identity.
//   - Reject opaque (non-JWT) tokens; those are passed through untouched.
package jwt
