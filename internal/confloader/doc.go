// Package confloader loads process configuration for the gotoken binaries.
//
// Sources are layered with koanf, later ones overriding earlier ones:
// built-in defaults, an optional YAML file, then GOTOKEN_ environment
// variables. A double underscore separates nesting levels in variable names,
// so GOTOKEN_JWT__ACCESS_TTL maps to jwt.access_ttl.
package confloader
