package goToken

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by goToken APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Store    StoreConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by goToken APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh session policy.
type SessionConfig struct {
	// RevokeSupersededOnIssue marks the refresh token behind a subject's
	// pointer revoked when a new pair is issued for that subject. When false
	// the superseded token stays valid until it expires, but it can only be
	// exchanged while the subject has a live session pointer.
	RevokeSupersededOnIssue bool
}

// StoreConfig defines a public type used by goToken APIs.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	KeyPrefix        string
	OperationTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by goToken APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode          bool
	EnableLoginThrottle     bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig defines a public type used by goToken APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goToken APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the baseline configuration. Callers still need to
// supply key material.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
		},
		Security: SecurityConfig{
			EnableLoginThrottle:     true,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("JWT SigningMethod must be ed25519 or hs256")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be blank")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}
	if c.JWT.KeyID != "" && len(c.JWT.VerifyKeys) > 0 {
		if _, ok := c.JWT.VerifyKeys[c.JWT.KeyID]; !ok {
			return errors.New("JWT KeyID must be present in VerifyKeys")
		}
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}
	if strings.ContainsAny(c.Store.KeyPrefix, " \t\r\n") {
		return errors.New("Store KeyPrefix must not contain whitespace")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginCooldownDuration <= 0 {
			return errors.New("login throttle requires MaxLoginAttempts and LoginCooldownDuration > 0")
		}
	}
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return errors.New("EnableIPThrottle requires EnableLoginThrottle")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("refresh throttle requires MaxRefreshAttempts and RefreshCooldownDuration > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.JWT.RefreshTTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires JWT RefreshTTL <= 30d")
		}
		if c.JWT.Leeway > 30*time.Second {
			return errors.New("ProductionMode requires JWT Leeway <= 30s")
		}
		if !c.Security.EnableLoginThrottle {
			return errors.New("ProductionMode requires EnableLoginThrottle")
		}
	}

	return nil
}
