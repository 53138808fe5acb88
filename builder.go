package goToken

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder defines a public type used by goToken APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config  Config
	redis   redis.UniversalClient
	backend session.Backend

	userProvider UserProvider
	auditSink    AuditSink
	logger       *zerolog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig copies cfg, including key material, so later caller mutation has no effect.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store and the
// login/refresh throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend overrides the session store. When set together with WithRedis,
// Redis is used only for throttling.
func (b *Builder) WithBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
//
// WithUserProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil && b.backend == nil {
		return nil, errors.New("redis client or session backend required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "goToken").Logger()
	if b.logger != nil {
		logger = *b.logger
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           b.now,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := b.backend
	if store == nil {
		store = session.NewStore(b.redis, cfg.Store.KeyPrefix)
	}

	// -------- THROTTLES --------
	var limiter *rate.Limiter
	if b.redis != nil {
		limiter = rate.New(b.redis, rate.Config{
			KeyPrefix:               cfg.Store.KeyPrefix,
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	} else if cfg.Security.EnableLoginThrottle || cfg.Security.EnableRefreshThrottle {
		logger.Warn().Msg("throttling configured without a redis client; login and refresh throttles are disabled")
	}

	engine := &Engine{
		config:       cfg,
		jwtManager:   jm,
		sessionStore: store,
		rateLimiter:  limiter,
		userProvider: b.userProvider,
		logger:       logger,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flows = flows.New(engine.buildFlowDeps())

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	timeout := e.config.Store.OperationTimeout

	issue := flows.IssueDeps{
		Codec:            e.jwtManager,
		Store:            e.sessionStore,
		StoreTimeout:     timeout,
		RevokeSuperseded: e.config.Session.RevokeSupersededOnIssue,
	}

	refresh := flows.RefreshDeps{
		Issue:        issue,
		RateLimited:  rate.ErrRateLimited,
		StoreTimeout: timeout,
	}
	if e.rateLimiter != nil && e.config.Security.EnableRefreshThrottle {
		refresh.RateLimiter = e.rateLimiter
	}

	login := flows.LoginDeps{
		Issue:               issue,
		ClientIPFromContext: clientIPFromContext,
		RateLimited:         rate.ErrRateLimited,
		InvalidCredentials:  ErrInvalidCredentials,
		StoreTimeout:        timeout,
		Warn: func(err error, msg string) {
			e.logger.Warn().Err(err).Msg(msg)
		},
	}
	if e.rateLimiter != nil && e.config.Security.EnableLoginThrottle {
		login.RateLimiter = e.rateLimiter
	}

	register := flows.RegisterDeps{
		Issue:         issue,
		AccountExists: ErrAccountExists,
	}

	if e.userProvider != nil {
		up := e.userProvider
		login.VerifyCredentials = func(ctx context.Context, username, password string) (flows.Identity, error) {
			id, err := up.VerifyCredentials(ctx, username, password)
			return flows.Identity{Subject: id.Subject, Role: id.Role}, err
		}
		register.CreateAccount = func(ctx context.Context, username, password, name, phone string) (flows.Identity, error) {
			id, err := up.CreateAccount(ctx, RegistrationInfo{
				Username: username,
				Password: password,
				Name:     name,
				Phone:    phone,
			})
			return flows.Identity{Subject: id.Subject, Role: id.Role}, err
		}
	}

	return flows.Deps{
		Issue:   issue,
		Refresh: refresh,
		Revoke: flows.RevokeDeps{
			Codec:        e.jwtManager,
			Store:        e.sessionStore,
			StoreTimeout: timeout,
		},
		Validate: flows.ValidateDeps{
			Codec:        e.jwtManager,
			Store:        e.sessionStore,
			StoreTimeout: timeout,
		},
		Login:    login,
		Register: register,
	}
}
