package goToken

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/MrEthical07/goToken/session/badgerstore"
	"github.com/rs/zerolog"
)

func runConcurrentRefresh(t *testing.T, engine *Engine, refresh string) (success, reuse int) {
	t.Helper()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	start := make(chan struct{})
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(context.Background(), refresh)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	for err := range results {
		if err == nil {
			success++
			continue
		}
		// a loser that runs after the winner's reuse detection finds no pointer
		if errors.Is(err, ErrRefreshReuse) || errors.Is(err, ErrSessionNotFound) {
			reuse++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}
	return success, reuse
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	engine, _, up := newTestEngine(t, testConfig())
	up.add("alice", "correct", "user")

	pair, err := engine.Login(context.Background(), "alice", "correct")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	success, fail := runConcurrentRefresh(t, engine, pair.RefreshToken)
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != 15 {
		t.Fatalf("expected 15 refresh failures, got %d", fail)
	}
}

func TestRefreshConcurrencySingleWinnerBadger(t *testing.T) {
	store, err := badgerstore.Open(badgerstore.Options{InMemory: true, Logger: zerolog.New(io.Discard)})
	if err != nil {
		t.Fatalf("badgerstore.Open failed: %v", err)
	}
	defer store.Close()

	engine, err := New().
		WithConfig(testConfig()).
		WithBackend(store).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.Issue(context.Background(), "alice", "user")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	success, fail := runConcurrentRefresh(t, engine, pair.RefreshToken)
	if success != 1 || fail != 15 {
		t.Fatalf("expected 1 winner and 15 losers, got %d/%d", success, fail)
	}
}
