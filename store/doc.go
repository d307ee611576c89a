// Package store provides durable persistence for the client's access token and the
// serialized profile of the signed-in user.
//
// # Layout
//
// Every backend writes two keys, optionally prefixed: access_token holds the raw bearer
// string and user_info holds the JSON profile. Both are written in one atomic unit
// (Redis MULTI/EXEC, a single Badger transaction, or one mutex section) so a concurrent
// reader never sees one without the other.
//
// # Failure model
//
// Load fails soft on corrupt data: an unparseable profile, or a token without a profile
// (or the reverse), purges both keys and reports absence. Only backend failures surface
// as errors, wrapped in [ErrStoreUnavailable].
//
// # What this package must NOT do
//
//   - Log token values.
//   - Interpret roles or session state.
//   - Import the root webauth package.
package store
