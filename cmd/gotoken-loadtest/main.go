// Command gotoken-loadtest measures validate and refresh latency against a
// Redis-backed engine and checks that concurrent refreshes of one token
// produce exactly one winner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type subjectState struct {
	subject string
	pair    goToken.TokenPair
	mu      sync.Mutex
}

func main() {
	var (
		subjects    = flag.Int("subjects", 10000, "number of subjects to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + refresh)")
		racers      = flag.Int("racers", 32, "goroutines per token in the race phase")
		races       = flag.Int("races", 200, "tokens raced in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt:", "store key prefix")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 0 || *races < 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goToken.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("gotoken-loadtest-secret-0123456789abcdef")
	cfg.Store.KeyPrefix = *prefix
	cfg.Security.EnableRefreshThrottle = false

	engine, err := goToken.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(zerolog.New(io.Discard)).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]subjectState, *subjects)
	fmt.Printf("seeding %d subjects...\n", *subjects)
	startSeed := time.Now()
	for i := range states {
		subject := fmt.Sprintf("sub-%d", i)
		pair, err := engine.Issue(ctx, subject, "user")
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].subject = subject
		states[i].pair = pair
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)
	violations := runRacePhase(ctx, engine, *races, *racers)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("race: tokens=%d racers=%d single-winner violations=%d\n", *races, *racers, violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func runValidatePhase(ctx context.Context, engine *goToken.Engine, states []subjectState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand) bool {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		access := state.pair.AccessToken
		state.mu.Unlock()
		_, err := engine.Validate(ctx, access)
		return err == nil
	})
}

func runRefreshPhase(ctx context.Context, engine *goToken.Engine, states []subjectState, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand) bool {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		next, err := engine.Refresh(ctx, state.pair.RefreshToken)
		if err != nil {
			return false
		}
		state.pair = next
		return true
	})
}

// runRacePhase refreshes each fresh token from many goroutines at once and
// counts tokens that did not yield exactly one winner.
func runRacePhase(ctx context.Context, engine *goToken.Engine, races, racers int) int {
	violations := 0
	for i := 0; i < races; i++ {
		pair, err := engine.Issue(ctx, fmt.Sprintf("race-%d", i), "user")
		if err != nil {
			violations++
			continue
		}

		var (
			wg      sync.WaitGroup
			winners int64
			start   = make(chan struct{})
		)
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := engine.Refresh(ctx, pair.RefreshToken)
				if err == nil {
					atomic.AddInt64(&winners, 1)
				} else if !errors.Is(err, goToken.ErrRefreshReuse) && !errors.Is(err, goToken.ErrSessionNotFound) {
					fmt.Fprintf(os.Stderr, "unexpected refresh error: %v\n", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		if winners != 1 {
			violations++
		}
	}
	return violations
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
