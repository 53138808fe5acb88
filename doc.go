// Package goToken issues, rotates and revokes JWT access and refresh tokens
// on top of a shared TTL key-value store.
//
// Access tokens are short-lived and verified statelessly, with a blacklist
// lookup for tokens revoked before expiry. Refresh tokens are one-time: each
// exchange atomically consumes the presented token and issues a new pair.
// Presenting a consumed or revoked refresh token is treated as theft and ends
// the subject's session.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goToken is the public surface. It exposes [Engine], [Builder], [Config],
// sentinel errors and value types ([TokenPair], [AuthResult],
// [RefreshResult]). Flow orchestration and throttling live under internal/.
// Token encoding lives in jwt and the store contract in session.
//
// # What this package must NOT do
//
//   - Report a store outage as an invalid token.
//   - Leak parse or store details through returned errors.
//   - Hold mutable per-session state in process memory.
//   - Import any sub-package that re-imports goToken (no import cycles).
package goToken
