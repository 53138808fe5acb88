package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/internal/confloader"
)

// Settings is the process configuration. Secrets are given as file paths or
// as values; a value wins over its file.
type Settings struct {
	HTTP struct {
		Addr            string        `koanf:"addr"`
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
		AuthRatePerSec  float64       `koanf:"auth_rate_per_sec"`
		AuthBurst       int           `koanf:"auth_burst"`
	} `koanf:"http"`

	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
	} `koanf:"log"`

	JWT struct {
		AccessTTL      time.Duration `koanf:"access_ttl"`
		RefreshTTL     time.Duration `koanf:"refresh_ttl"`
		SigningMethod  string        `koanf:"signing_method"`
		Secret         string        `koanf:"secret"`
		PrivateKeyFile string        `koanf:"private_key_file"`
		PublicKeyFile  string        `koanf:"public_key_file"`
		Issuer         string        `koanf:"issuer"`
		Audience       string        `koanf:"audience"`
		Leeway         time.Duration `koanf:"leeway"`
		KeyID          string        `koanf:"key_id"`
	} `koanf:"jwt"`

	Session struct {
		RevokeSupersededOnIssue bool `koanf:"revoke_superseded_on_issue"`
	} `koanf:"session"`

	Store struct {
		Backend          string        `koanf:"backend"`
		RedisAddr        string        `koanf:"redis_addr"`
		RedisPassword    string        `koanf:"redis_password"`
		RedisDB          int           `koanf:"redis_db"`
		BadgerDir        string        `koanf:"badger_dir"`
		KeyPrefix        string        `koanf:"key_prefix"`
		OperationTimeout time.Duration `koanf:"operation_timeout"`
	} `koanf:"store"`

	Security struct {
		ProductionMode          bool          `koanf:"production_mode"`
		EnableLoginThrottle     bool          `koanf:"enable_login_throttle"`
		EnableIPThrottle        bool          `koanf:"enable_ip_throttle"`
		EnableRefreshThrottle   bool          `koanf:"enable_refresh_throttle"`
		MaxLoginAttempts        int           `koanf:"max_login_attempts"`
		LoginCooldownDuration   time.Duration `koanf:"login_cooldown"`
		MaxRefreshAttempts      int           `koanf:"max_refresh_attempts"`
		RefreshCooldownDuration time.Duration `koanf:"refresh_cooldown"`
	} `koanf:"security"`

	Users struct {
		DSN string `koanf:"dsn"`
	} `koanf:"users"`

	Audit struct {
		Enabled    bool `koanf:"enabled"`
		BufferSize int  `koanf:"buffer_size"`
	} `koanf:"audit"`

	Metrics struct {
		Enabled bool   `koanf:"enabled"`
		Path    string `koanf:"path"`
	} `koanf:"metrics"`
}

func defaultSettings() map[string]any {
	d := goToken.DefaultConfig()
	return map[string]any{
		"http": map[string]any{
			"addr":              ":8080",
			"read_timeout":      "10s",
			"write_timeout":     "10s",
			"shutdown_timeout":  "15s",
			"auth_rate_per_sec": 5.0,
			"auth_burst":        20,
		},
		"log": map[string]any{
			"level":  "info",
			"format": "json",
		},
		"jwt": map[string]any{
			"access_ttl":     d.JWT.AccessTTL.String(),
			"refresh_ttl":    d.JWT.RefreshTTL.String(),
			"signing_method": d.JWT.SigningMethod,
			"issuer":         "gotoken",
		},
		"store": map[string]any{
			"backend":           "redis",
			"redis_addr":        "127.0.0.1:6379",
			"badger_dir":        "./data/sessions",
			"operation_timeout": d.Store.OperationTimeout.String(),
		},
		"security": map[string]any{
			"enable_login_throttle":   d.Security.EnableLoginThrottle,
			"enable_ip_throttle":      d.Security.EnableIPThrottle,
			"enable_refresh_throttle": d.Security.EnableRefreshThrottle,
			"max_login_attempts":      d.Security.MaxLoginAttempts,
			"login_cooldown":          d.Security.LoginCooldownDuration.String(),
			"max_refresh_attempts":    d.Security.MaxRefreshAttempts,
			"refresh_cooldown":        d.Security.RefreshCooldownDuration.String(),
		},
		"users": map[string]any{
			"dsn": "file:gotoken-users.db?_pragma=busy_timeout(5000)",
		},
		"audit": map[string]any{
			"enabled":     false,
			"buffer_size": d.Audit.BufferSize,
		},
		"metrics": map[string]any{
			"enabled": true,
			"path":    "/metrics",
		},
	}
}

func loadSettings(configFile string) (*Settings, error) {
	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	var s Settings
	if err := confloader.NewLoader(opts...).Load(defaultSettings(), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EngineConfig converts the settings and reads key material.
func (s *Settings) EngineConfig() (goToken.Config, error) {
	cfg := goToken.DefaultConfig()

	cfg.JWT.AccessTTL = s.JWT.AccessTTL
	cfg.JWT.RefreshTTL = s.JWT.RefreshTTL
	cfg.JWT.SigningMethod = strings.ToLower(s.JWT.SigningMethod)
	cfg.JWT.Issuer = s.JWT.Issuer
	cfg.JWT.Audience = s.JWT.Audience
	cfg.JWT.Leeway = s.JWT.Leeway
	cfg.JWT.KeyID = s.JWT.KeyID

	switch cfg.JWT.SigningMethod {
	case "hs256":
		secret, err := decodeSecret(s.JWT.Secret)
		if err != nil {
			return cfg, err
		}
		cfg.JWT.PrivateKey = secret
	case "ed25519":
		if s.JWT.PrivateKeyFile == "" {
			return cfg, errors.New("jwt.private_key_file is required for ed25519")
		}
		priv, err := os.ReadFile(s.JWT.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		cfg.JWT.PrivateKey = priv
		if s.JWT.PublicKeyFile != "" {
			pub, err := os.ReadFile(s.JWT.PublicKeyFile)
			if err != nil {
				return cfg, fmt.Errorf("read public key: %w", err)
			}
			cfg.JWT.PublicKey = pub
		}
	}

	cfg.Session.RevokeSupersededOnIssue = s.Session.RevokeSupersededOnIssue

	cfg.Store.KeyPrefix = s.Store.KeyPrefix
	cfg.Store.OperationTimeout = s.Store.OperationTimeout

	cfg.Security.ProductionMode = s.Security.ProductionMode
	cfg.Security.EnableLoginThrottle = s.Security.EnableLoginThrottle
	cfg.Security.EnableIPThrottle = s.Security.EnableIPThrottle
	cfg.Security.EnableRefreshThrottle = s.Security.EnableRefreshThrottle
	cfg.Security.MaxLoginAttempts = s.Security.MaxLoginAttempts
	cfg.Security.LoginCooldownDuration = s.Security.LoginCooldownDuration
	cfg.Security.MaxRefreshAttempts = s.Security.MaxRefreshAttempts
	cfg.Security.RefreshCooldownDuration = s.Security.RefreshCooldownDuration

	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Audit.BufferSize = s.Audit.BufferSize
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Enabled

	return cfg, cfg.Validate()
}

// decodeSecret accepts "base64:<data>" or a raw string.
func decodeSecret(v string) ([]byte, error) {
	if v == "" {
		return nil, errors.New("jwt.secret is required for hs256")
	}
	if rest, ok := strings.CutPrefix(v, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(rest)
		if err != nil {
			return nil, fmt.Errorf("decode jwt.secret: %w", err)
		}
		return b, nil
	}
	return []byte(v), nil
}
