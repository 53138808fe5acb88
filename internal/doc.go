// Package internal holds helpers private to goToken.
//
// # Sub-packages
//
//   - confloader: koanf-backed process configuration loading
//   - flows: pure-function orchestrators for every token lifecycle operation
//   - rate: Redis fixed-window limiters for login and refresh throttling
//
// # What this package must NOT do
//
//   - Export types that appear in the public goToken API.
//   - Be imported by any package outside the goToken module.
package internal
