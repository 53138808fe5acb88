package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/httpapi"
	promexport "github.com/MrEthical07/goToken/metrics/export/prometheus"
	"github.com/MrEthical07/goToken/session/badgerstore"
	"github.com/MrEthical07/goToken/users"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (overrides http.addr)",
			},
		},
		Action: func(c *cli.Context) error {
			s, err := loadSettings(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr := c.String("addr"); addr != "" {
				s.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, s)
		},
	}
}

func newLogger(level, format string) zerolog.Logger {
	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
		logger.Warn().Str("invalid_level", level).Msg("invalid log level, using info")
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func serve(ctx context.Context, s *Settings) error {
	logger := newLogger(s.Log.Level, s.Log.Format)

	cfg, err := s.EngineConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	accounts, err := users.Open(s.Users.DSN)
	if err != nil {
		return err
	}
	defer accounts.Close()

	b := goToken.New().
		WithConfig(cfg).
		WithUserProvider(accounts).
		WithLogger(logger.With().Str("component", "engine").Logger())
	if s.Audit.Enabled {
		b.WithAuditSink(goToken.NewZerologSink(logger))
	}

	switch strings.ToLower(s.Store.Backend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     s.Store.RedisAddr,
			Password: s.Store.RedisPassword,
			DB:       s.Store.RedisDB,
		})
		defer rdb.Close()
		b.WithRedis(rdb)
	case "badger":
		bs, err := badgerstore.Open(badgerstore.Options{
			Dir:        s.Store.BadgerDir,
			Prefix:     s.Store.KeyPrefix,
			GCInterval: 10 * time.Minute,
			Logger:     logger.With().Str("component", "badger").Logger(),
		})
		if err != nil {
			return err
		}
		defer bs.Close()
		b.WithBackend(bs)
	default:
		return fmt.Errorf("unknown store.backend %q", s.Store.Backend)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if st := engine.Health(ctx); !st.Available {
		logger.Warn().Str("backend", s.Store.Backend).Msg("session store not reachable at startup")
	}

	gin.SetMode(gin.ReleaseMode)
	opts := httpapi.Options{Logger: logger.With().Str("component", "http").Logger()}
	if s.HTTP.AuthRatePerSec > 0 {
		opts.AuthLimiter = httpapi.NewIPLimiter(s.HTTP.AuthRatePerSec, s.HTTP.AuthBurst)
	}
	if s.Metrics.Enabled {
		exporter := promexport.NewPrometheusExporter(engine)
		opts.Extra = func(r *gin.Engine) {
			r.GET(s.Metrics.Path, gin.WrapH(exporter.Handler()))
		}
	}

	srv := &http.Server{
		Addr:         s.HTTP.Addr,
		Handler:      httpapi.NewRouter(engine, opts),
		ReadTimeout:  s.HTTP.ReadTimeout,
		WriteTimeout: s.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.HTTP.Addr).Str("backend", s.Store.Backend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
