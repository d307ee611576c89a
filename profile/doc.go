// Package profile defines the user identity carried by an authenticated session:
// [UserProfile], the closed [Role] enumeration, and shallow [Patch] merging.
//
// # Wire format
//
// Profiles serialize to the JSON object the platform API returns and the token store
// persists under user_info: id, email, username, fullName, role, avatar, points, streak.
// Fields outside that set are kept in [UserProfile.Extra] so that patches can add them
// and a round trip preserves them byte-for-byte per field.
//
// # What this package must NOT do
//
//   - Perform I/O or hold references to stores or sessions.
//   - Reject unknown role strings on decode (routing decides what they mean).
package profile
