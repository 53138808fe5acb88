// Package badgerstore implements session.Backend on an embedded Badger
// database for single-node deployments that do not run Redis.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goToken/internal"
	"github.com/MrEthical07/goToken/session"
	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

const maxConflictRetries = 16

var errClosed = errors.New("badger store closed")

// Options configures a [Store].
type Options struct {
	// Dir is the on-disk directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Prefix   string
	// GCInterval runs value-log GC periodically. Zero disables it.
	GCInterval time.Duration
	SyncWrites bool
	Logger     zerolog.Logger
}

// Store is a Badger-backed [session.Backend]. Conditional updates run in
// read-write transactions and are retried on commit conflicts, which gives
// the same single-winner guarantee as the Redis scripts.
type Store struct {
	db     *badger.DB
	prefix string
	logger zerolog.Logger
	closed atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ session.Backend = (*Store)(nil)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}

	bopts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = &badgerLogger{logger: opts.Logger}
	bopts.SyncWrites = opts.SyncWrites

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &Store{
		db:     db,
		prefix: opts.Prefix,
		logger: opts.Logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	if opts.GCInterval > 0 && !opts.InMemory {
		go s.gcLoop(opts.GCInterval)
	} else {
		close(s.doneCh)
	}

	s.logger.Info().
		Str("dir", opts.Dir).
		Bool("in_memory", opts.InMemory).
		Dur("gc_interval", opts.GCInterval).
		Msg("badger store opened")

	return s, nil
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh
	return s.db.Close()
}

func (s *Store) validityKey(jti string) []byte {
	return []byte(s.prefix + "used_refresh_token:" + jti)
}

func (s *Store) pointerKey(subject string) []byte {
	return []byte(s.prefix + "refresh:" + subject)
}

func (s *Store) blacklistKey(token string) []byte {
	return []byte(s.prefix + "blacklist:" + internal.HashToken(token))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
}

func (s *Store) ready(ctx context.Context) error {
	if s.closed.Load() {
		return unavailable(errClosed)
	}
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := s.ready(ctx); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return unavailable(badger.ErrConflict)
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getString(txn *badger.Txn, key []byte) (string, *badger.Item, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", nil, err
	}
	return string(val), item, nil
}

func (s *Store) SaveIssued(ctx context.Context, subject, jti, refreshToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry(s.validityKey(jti), []byte(session.ValidityValid)).WithTTL(ttl)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(s.pointerKey(subject), []byte(refreshToken)).WithTTL(ttl))
	})
	return wrap(err)
}

func (s *Store) SetRefreshValidity(ctx context.Context, jti string, v session.Validity, ttl time.Duration) error {
	if v != session.ValidityValid && v != session.ValidityRevoked {
		return fmt.Errorf("invalid validity %q", v)
	}
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		current, _, err := getString(txn, s.validityKey(jti))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if session.Validity(current) == session.ValidityRevoked && v != session.ValidityRevoked {
			return session.ErrRevokedIrreversible
		}
		return txn.SetEntry(badger.NewEntry(s.validityKey(jti), []byte(v)).WithTTL(ttl))
	})
	return wrap(err)
}

func (s *Store) GetRefreshValidity(ctx context.Context, jti string) (session.Validity, error) {
	var out session.Validity
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, _, err := getString(txn, s.validityKey(jti))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		out = session.Validity(v)
		return err
	})
	if err != nil {
		return session.ValidityAbsent, wrap(err)
	}
	return out, nil
}

// ConsumeRefresh applies the rotation transition in one transaction.
func (s *Store) ConsumeRefresh(ctx context.Context, jti, subject string, fallbackTTL time.Duration) (session.ConsumeStatus, error) {
	var status session.ConsumeStatus
	err := s.update(ctx, func(txn *badger.Txn) error {
		state, item, err := getString(txn, s.validityKey(jti))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			status = session.ConsumeReuseAbsent
			return txn.Delete(s.pointerKey(subject))
		case err != nil:
			return err
		case session.Validity(state) != session.ValidityValid:
			status = session.ConsumeReuseRevoked
			return txn.Delete(s.pointerKey(subject))
		}

		if _, err := txn.Get(s.pointerKey(subject)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				status = session.ConsumeSessionNotFound
				return nil
			}
			return err
		}

		entry := badger.NewEntry(s.validityKey(jti), []byte(session.ValidityRevoked))
		if exp := item.ExpiresAt(); exp > 0 {
			entry.ExpiresAt = exp
		} else {
			entry = entry.WithTTL(fallbackTTL)
		}
		status = session.ConsumeRotated
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, wrap(err)
	}
	return status, nil
}

func (s *Store) RevokeRefresh(ctx context.Context, jti string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		_, item, err := getString(txn, s.validityKey(jti))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		entry := badger.NewEntry(s.validityKey(jti), []byte(session.ValidityRevoked))
		entry.ExpiresAt = item.ExpiresAt()
		return txn.SetEntry(entry)
	})
	return wrap(err)
}

func (s *Store) SetSessionPointer(ctx context.Context, subject, refreshToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("non-positive ttl")
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(s.pointerKey(subject), []byte(refreshToken)).WithTTL(ttl))
	})
	return wrap(err)
}

func (s *Store) GetSessionPointer(ctx context.Context, subject string) (string, bool, error) {
	var (
		token string
		found bool
	)
	err := s.view(ctx, func(txn *badger.Txn) error {
		v, _, err := getString(txn, s.pointerKey(subject))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		token, found = v, true
		return nil
	})
	if err != nil {
		return "", false, wrap(err)
	}
	return token, found, nil
}

func (s *Store) DeleteSessionPointer(ctx context.Context, subject string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(s.pointerKey(subject))
	})
	return wrap(err)
}

func (s *Store) BlacklistAccess(ctx context.Context, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(s.blacklistKey(accessToken), []byte("1")).WithTTL(ttl))
	})
	return wrap(err)
}

func (s *Store) IsBlacklisted(ctx context.Context, accessToken string) (bool, error) {
	var found bool
	err := s.view(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(s.blacklistKey(accessToken))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		return false, wrap(err)
	}
	return found, nil
}

// Ping reports whether the database is open. Latency is the cost of an
// empty read transaction.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.view(ctx, func(*badger.Txn) error { return nil })
	return time.Since(start), wrap(err)
}

// wrap leaves nil, store-level sentinels and already-wrapped errors alone
// and maps everything else to ErrStoreUnavailable.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrStoreUnavailable), errors.Is(err, session.ErrRevokedIrreversible):
		return err
	default:
		return unavailable(err)
	}
}

func (s *Store) gcLoop(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Error().Err(err).Msg("badger value log gc failed")
					}
					break
				}
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts zerolog to Badger's Logger interface.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
