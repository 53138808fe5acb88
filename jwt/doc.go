// Package jwt creates and verifies the signed access and refresh tokens used
// by the token engine. Tokens are self-contained: the package never touches
// the shared store, and every parse failure collapses onto a small error set.
package jwt
