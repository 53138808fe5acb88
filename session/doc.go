// Package session defines the shared TTL key-value contract the token engine
// depends on, and ships the Redis implementation of it.
//
// # Key namespaces
//
//   - used_refresh_token:<jti>: refresh validity record, "valid" or "revoked"
//   - refresh:<subject>: current refresh token for the subject (session pointer)
//   - blacklist:<sha256(token)>: revoked access token marker
//
// An optional prefix is prepended to every key.
//
// # Atomicity
//
// Refresh consumption, revocation and validity writes run as Lua scripts so
// concurrent callers observe a single check-and-mark. Once a record reads
// "revoked" it never reads "valid" again.
//
// # What this package must NOT do
//
//   - Import goToken or jwt (no upward imports).
//   - Interpret token contents beyond hashing them for key names.
package session
