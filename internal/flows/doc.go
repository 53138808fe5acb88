// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssue, RunRefresh, RunRevokeAccess, RunValidate,
// RunLogin, RunRegister) accepts a typed dependency struct and returns a
// tagged result. Callers switch on the Failure kind, so the reuse branch of
// refresh cannot be silently dropped.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, the session backend and the
// rate limiters. They do not log, emit audit events or record metrics; the
// Engine does that from the returned result.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goToken (to avoid import cycles).
package flows
