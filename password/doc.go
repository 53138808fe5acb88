// Package password hashes account passwords with Argon2id for the reference
// user store.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes made with weaker parameters so callers
// can rehash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other goToken package.
//   - Log plaintext passwords.
package password
