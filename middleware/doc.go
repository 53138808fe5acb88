// Package middleware exposes net/http adapters over goToken.Engine validation
// for hosts that do not use the gin adapter in httpapi.
//
// # Guards
//
//   - [Guard] validates the bearer access token and injects the result.
//   - [RequireRole] rejects requests whose validated role does not match.
//
// Each guard reads the Authorization header, calls Engine.Validate, and injects
// the validated [goToken.AuthResult] into the request context.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the session store (Engine handles I/O).
//   - Make authorization decisions beyond the role claim.
package middleware
