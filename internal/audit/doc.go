// Package audit implements async dispatching of session lifecycle events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, zap, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured record with ULID, timestamp, type, user, role and epoch.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; the Session and Client do.
//
// # What this package must NOT do
//
//   - Carry access tokens in events.
//   - Import webauth or any sibling internal package.
package audit
