// Package users is a reference goToken.UserProvider backed by gorm.
//
// Accounts live in a single "accounts" table. Passwords are hashed with
// bcrypt. [Open] picks PostgreSQL for postgres:// DSNs and SQLite otherwise.
//
// # What this package must NOT do
//
//   - Issue or validate tokens (that is goToken.Engine's job).
//   - Log or return password material.
package users
