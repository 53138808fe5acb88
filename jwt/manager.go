package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (EdDSA).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// TokenType is carried in the "typ" claim so a refresh token can never be
// presented where an access token is expected (and vice versa).
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
)

const maxLeeway = 2 * time.Minute

var (
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrWrongTokenType   = errors.New("token type mismatch")
	ErrClaimsInvalid    = errors.New("token claims invalid")
)

// Config defines the signing material and lifetimes of a [Manager].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	// Leeway is the tolerated clock skew for exp/nbf checks. Zero means none.
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager creates and verifies access and refresh tokens. It holds no
// mutable state after NewManager returns and is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
	sign   interface{}
	verify interface{}
	// verifyKeys holds decoded VerifyKeys by kid: []byte for hs256,
	// ed25519.PublicKey for ed25519.
	verifyKeys map[string]interface{}
}

// Claims is the payload shared by access and refresh tokens. Refresh tokens
// always carry a jti; access tokens carry one for blacklist uniqueness.
type Claims struct {
	Role string    `json:"role"`
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates cfg, decodes the key material once and returns an
// immutable Manager. Key slices are copied so later caller mutation has no effect.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.PrivateKey = cloneBytes(cfg.PrivateKey)
	cfg.PublicKey = cloneBytes(cfg.PublicKey)
	if len(cfg.VerifyKeys) > 0 {
		keys := make(map[string][]byte, len(cfg.VerifyKeys))
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			keys[kid] = cloneBytes(key)
		}
		cfg.VerifyKeys = keys
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.sign = cfg.PrivateKey
		m.verify = cfg.PrivateKey
		if len(cfg.VerifyKeys) > 0 {
			m.verifyKeys = make(map[string]interface{}, len(cfg.VerifyKeys))
			for kid, key := range cfg.VerifyKeys {
				m.verifyKeys[kid] = key
			}
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify = pub
		} else if priv, ok := m.sign.(ed25519.PrivateKey); ok {
			m.verify = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.VerifyKeys) == 0 && m.verify == nil {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		if len(cfg.VerifyKeys) > 0 {
			m.verifyKeys = make(map[string]interface{}, len(cfg.VerifyKeys))
			for kid, key := range cfg.VerifyKeys {
				pub, err := parseEdPublicKey(key)
				if err != nil {
					return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
				}
				m.verifyKeys[kid] = pub
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return m, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs a short-lived access token for subject/role.
func (j *Manager) CreateAccess(subject, role string) (string, error) {
	token, _, err := j.create(subject, role, TypeAccess, j.config.AccessTTL)
	return token, err
}

// CreateRefresh signs a long-lived refresh token with a fresh jti and
// returns both the token and its jti.
func (j *Manager) CreateRefresh(subject, role string) (string, string, error) {
	return j.create(subject, role, TypeRefresh, j.config.RefreshTTL)
}

func (j *Manager) create(subject, role string, typ TokenType, ttl time.Duration) (string, string, error) {
	if subject == "" {
		return "", "", errors.New("empty subject")
	}
	if j.sign == nil {
		return "", "", errors.New("manager has no signing key")
	}

	now := j.config.Now()
	jti := uuid.NewString()
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signed, err := token.SignedString(j.sign)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// ParseAccess verifies an access token and returns its claims.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, TypeAccess)
}

// ParseRefresh verifies a refresh token and returns its claims. A refresh
// token without a jti is rejected as malformed.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	claims, err := j.parse(tokenStr, TypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

// RemainingTTL returns how long tokenStr stays valid, or 0 when it does not
// verify or has already expired.
func (j *Manager) RemainingTTL(tokenStr string) time.Duration {
	claims, err := j.parse(tokenStr, "")
	if err != nil {
		return 0
	}
	return j.Remaining(claims)
}

// Remaining returns the time left until claims expire, clamped at zero.
func (j *Manager) Remaining(claims *Claims) time.Duration {
	if claims == nil || claims.ExpiresAt == nil {
		return 0
	}
	left := claims.ExpiresAt.Time.Sub(j.config.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (j *Manager) parse(tokenStr string, want TokenType) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, Classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrClaimsInvalid
	}
	if claims.Subject == "" {
		return nil, ErrClaimsInvalid
	}
	if want != "" && claims.Type != want {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.verifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.verifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	if j.verify == nil {
		return nil, errors.New("manager has no verification key")
	}
	return j.verify, nil
}

// Classify maps parser errors onto the package taxonomy. Callers outside
// this module only ever see a collapsed "invalid token".
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrExpired), errors.Is(err, ErrNotYetValid),
		errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrWrongTokenType), errors.Is(err, ErrClaimsInvalid):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrClaimsInvalid
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
