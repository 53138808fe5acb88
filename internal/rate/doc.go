// Package rate provides Redis fixed-window counters that throttle login
// attempts and refresh exchanges.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes
// (after the configured KeyPrefix):
//   - al: failed logins per username
//   - ali: failed logins per client IP
//   - ar: refresh exchanges per subject
//
// # What this package must NOT do
//
//   - Decide what a rate-limited request means for the caller.
//   - Be imported outside the goToken module.
package rate
