// Command ledgergate-stormtest drives a ledgergate client against the
// in-process fake API and checks that bursts of rejected calls end the
// session exactly once.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ledgerops/ledgergate"
	"github.com/ledgerops/ledgergate/internal/fakeapi"
	"github.com/ledgerops/ledgergate/ui"
)

type countingNotifier struct {
	n atomic.Int64
}

func (c *countingNotifier) Notify(context.Context, ui.Severity, string) {
	c.n.Add(1)
}

func main() {
	var (
		rounds    = flag.Int("rounds", 50, "number of expiry storms")
		callers   = flag.Int("callers", 64, "concurrent calls per storm")
		calls     = flag.Int("calls", 20000, "authenticated calls in the throughput phase")
		workers   = flag.Int("concurrency", 32, "workers in the throughput phase")
		backend   = flag.String("storage", "memory", "session storage: memory, badger or redis")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		verbose   = flag.Bool("v", false, "log client activity to stderr")
	)
	flag.Parse()

	if *rounds <= 0 || *callers <= 0 || *calls <= 0 || *workers <= 0 {
		fmt.Fprintln(os.Stderr, "rounds, callers, calls, and concurrency must be > 0")
		os.Exit(2)
	}

	storageCfg, cleanup, err := storageConfig(*backend, *redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	storage, closeStorage, err := ledgergate.OpenStorage(storageCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		os.Exit(1)
	}
	defer closeStorage()

	api := fakeapi.New(fakeapi.DefaultUsers())
	srv := httptest.NewServer(api.Handler())
	defer srv.Close()

	cfg := ledgergate.DefaultConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Storage = storageCfg

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	notifier := &countingNotifier{}
	history := ui.NewHistory(ui.Location{Path: "/login"})
	client, err := ledgergate.New().
		WithConfig(cfg).
		WithStorage(storage).
		WithHTTPClient(srv.Client()).
		WithNotifier(notifier).
		WithNavigator(history).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx := context.Background()
	fmt.Printf("storage=%s rounds=%d callers=%d\n", storageCfg.Backend, *rounds, *callers)

	callStats, err := runCallPhase(ctx, client, *calls, *workers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call phase: %v\n", err)
		os.Exit(1)
	}
	stormStats, violations := runStormPhase(ctx, client, api, history, notifier, *rounds, *callers)

	fmt.Println("---- results ----")
	printStats("calls", callStats)
	printStats("storm", stormStats)

	snap := client.MetricsSnapshot()
	fmt.Printf("sessions expired=%d unauthenticated calls=%d\n",
		snap.Counters[ledgergate.MetricSessionExpired],
		snap.Counters[ledgergate.MetricCallUnauthenticated])

	if violations > 0 {
		fmt.Printf("FAIL: %d of %d storms did not end the session exactly once\n", violations, *rounds)
		os.Exit(1)
	}
	fmt.Println("OK: every storm navigated and notified exactly once")
}

func storageConfig(backend, redisAddr string) (ledgergate.StorageConfig, func(), error) {
	cfg := ledgergate.DefaultConfig().Storage
	cfg.Backend = ledgergate.StorageBackend(backend)
	noop := func() {}

	switch cfg.Backend {
	case ledgergate.StorageMemory, ledgergate.StorageBadger:
		return cfg, noop, nil
	case ledgergate.StorageRedis:
	default:
		return cfg, noop, fmt.Errorf("unknown backend %q", backend)
	}

	if redisAddr == "" {
		redisAddr = os.Getenv("REDIS_ADDR")
	}
	if redisAddr != "" {
		cfg.RedisAddr = redisAddr
		fmt.Printf("using redis at %s\n", redisAddr)
		return cfg, noop, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return cfg, noop, fmt.Errorf("start miniredis: %w", err)
	}
	cfg.RedisAddr = mr.Addr()
	fmt.Printf("using miniredis at %s\n", cfg.RedisAddr)
	return cfg, mr.Close, nil
}

func runCallPhase(ctx context.Context, client *ledgergate.Client, calls, concurrency int) (phaseStats, error) {
	if _, err := client.Login(ctx, "alice", "alice123"); err != nil {
		return phaseStats{}, err
	}
	defer client.Logout(ctx)

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, calls)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if int(atomic.AddInt64(&cursor, 1)) > calls {
					return
				}
				t0 := time.Now()
				_, err := client.Get(ctx, "/ledger", nil)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures), nil
}

// runStormPhase logs in, expires every token server side and fires callers
// concurrent calls that the server releases together. Each storm must yield
// one navigation and one notification.
func runStormPhase(ctx context.Context, client *ledgergate.Client, api *fakeapi.Server, history *ui.History, notifier *countingNotifier, rounds, callers int) (phaseStats, int) {
	var (
		latencies  = make([]time.Duration, 0, rounds*callers)
		mu         sync.Mutex
		failures   int64
		violations int
	)

	start := time.Now()
	for r := 0; r < rounds; r++ {
		if _, err := client.Login(ctx, "alice", "alice123"); err != nil {
			fmt.Fprintf(os.Stderr, "round %d login: %v\n", r, err)
			violations++
			continue
		}
		if _, err := client.Navigate(ctx, "/ledger/list"); err != nil {
			fmt.Fprintf(os.Stderr, "round %d navigate: %v\n", r, err)
		}

		visits := len(history.Visited())
		notified := notifier.n.Load()
		api.ExpireSessions()
		api.HoldAuthenticated(callers)

		var wg sync.WaitGroup
		for c := 0; c < callers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				_, err := client.Get(ctx, "/ledger", nil)
				d := time.Since(t0)
				if err == nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		wg.Wait()
		api.HoldAuthenticated(0)

		navs := len(history.Visited()) - visits
		notes := notifier.n.Load() - notified
		if navs != 1 || notes != 1 || client.Session().IsAuthenticated() {
			fmt.Fprintf(os.Stderr, "round %d: navigations=%d notifications=%d\n", r, navs, notes)
			violations++
		}
	}
	return computeStats(time.Since(start), latencies, failures), violations
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
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d unexpected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
