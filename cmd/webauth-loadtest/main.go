// Command webauth-loadtest drives a Session and Client against a local
// platform stub. It measures request latency, then fires bursts of
// concurrent requests that all fail with 401 and checks that every burst
// produces exactly one logout and one redirect.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lingoleap/webauth"
	"github.com/lingoleap/webauth/jwt"
	"github.com/lingoleap/webauth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		ops         = flag.Int("ops", 20000, "authorized requests in the latency phase")
		concurrency = flag.Int("concurrency", 64, "number of concurrent requests")
		bursts      = flag.Int("bursts", 50, "number of 401 bursts")
		burstSize   = flag.Int("burst-size", 256, "concurrent requests per 401 burst")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest:", "token store key prefix")
	)
	flag.Parse()

	if *ops <= 0 || *concurrency <= 0 || *bursts <= 0 || *burstSize <= 0 {
		fmt.Fprintln(os.Stderr, "ops, concurrency, bursts, and burst-size must be > 0")
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

	issuer, err := jwt.NewIssuer(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("loadtest-signing-key-0123456789ab"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "issuer: %v\n", err)
		os.Exit(1)
	}

	stub := &platformStub{issuer: issuer}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	cfg := webauth.DefaultConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	sess, err := webauth.New().
		WithConfig(cfg).
		WithStore(store.NewRedisStore(client, *prefix, zap.NewNop())).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	var redirects atomic.Int64
	nav := webauth.NavigatorFunc(func(webauth.Route) { redirects.Add(1) })
	httpClient := &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: *concurrency}}
	c, err := webauth.NewClient(sess, nav, webauth.WithHTTPClient(httpClient))
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}

	if err := sess.Hydrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hydrate: %v\n", err)
		os.Exit(1)
	}
	if err := signIn(ctx, sess, issuer, 0); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	requestStats := runRequestPhase(ctx, c, *ops, *concurrency)
	burstStats, bad := runUnauthorizedPhase(ctx, sess, c, stub, issuer, &redirects, *bursts, *burstSize)

	fmt.Println("---- results ----")
	printStats("requests", requestStats)
	printStats("401 bursts", burstStats)

	m := sess.MetricsSnapshot().Counters
	fmt.Printf("forced logouts=%d suppressed=%d stale=%d redirects=%d\n",
		m[webauth.MetricForcedLogout], m[webauth.MetricUnauthorizedSuppressed], m[webauth.MetricUnauthorizedStale], redirects.Load())

	if bad > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d bursts did not produce exactly one redirect\n", bad, *bursts)
		os.Exit(1)
	}
}

// platformStub accepts tokens signed by issuer until reject is set.
type platformStub struct {
	issuer *jwt.Issuer
	reject atomic.Bool

	mu      sync.Mutex
	gate    chan struct{}
	pending int
}

// holdRejections makes the next n rejections wait until all n requests have
// arrived, so a burst is sent entirely with the token it started with.
func (p *platformStub) holdRejections(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
	p.pending = n
}

func (p *platformStub) waitForBurst() {
	p.mu.Lock()
	gate := p.gate
	if gate == nil {
		p.mu.Unlock()
		return
	}
	p.pending--
	if p.pending == 0 {
		close(gate)
		p.gate = nil
	}
	p.mu.Unlock()
	<-gate
}

func (p *platformStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const bearer = "Bearer "
	if p.reject.Load() {
		p.waitForBurst()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(bearer) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if _, err := p.issuer.Verify(auth[len(bearer):]); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func signIn(ctx context.Context, sess *webauth.Session, issuer *jwt.Issuer, round int) error {
	userID := fmt.Sprintf("u-%d", round)
	token, err := issuer.Issue(userID, string(webauth.RoleStudent))
	if err != nil {
		return err
	}
	return sess.Login(ctx, token, webauth.UserProfile{
		ID:       userID,
		Email:    userID + "@example.com",
		Username: userID,
		Role:     webauth.RoleStudent,
	})
}

func runRequestPhase(ctx context.Context, c *webauth.Client, ops, concurrency int) phaseStats {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
		g         errgroup.Group
	)
	g.SetLimit(concurrency)

	start := time.Now()
	for i := 0; i < ops; i++ {
		g.Go(func() error {
			t0 := time.Now()
			err := c.GetJSON(ctx, "/courses", nil)
			d := time.Since(t0)
			if err != nil {
				atomic.AddInt64(&failures, 1)
			}
			mu.Lock()
			latencies = append(latencies, d)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runUnauthorizedPhase returns the stats and the number of bursts that did
// not end with exactly one redirect.
func runUnauthorizedPhase(ctx context.Context, sess *webauth.Session, c *webauth.Client, stub *platformStub, issuer *jwt.Issuer, redirects *atomic.Int64, bursts, size int) (phaseStats, int) {
	var (
		failures  int64
		latencies = make([]time.Duration, 0, bursts*size)
		mu        sync.Mutex
		bad       int
	)

	start := time.Now()
	for b := 0; b < bursts; b++ {
		stub.reject.Store(false)
		if err := signIn(ctx, sess, issuer, b+1); err != nil {
			fmt.Fprintf(os.Stderr, "burst %d: login: %v\n", b, err)
			bad++
			continue
		}
		stub.holdRejections(size)
		stub.reject.Store(true)
		before := redirects.Load()

		var g errgroup.Group
		for i := 0; i < size; i++ {
			g.Go(func() error {
				t0 := time.Now()
				err := c.GetJSON(ctx, "/courses", nil)
				d := time.Since(t0)
				if !errors.Is(err, webauth.ErrUnauthorized) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if got := redirects.Load() - before; got != 1 || sess.IsAuthenticated() {
			fmt.Fprintf(os.Stderr, "burst %d: redirects=%d authenticated=%v\n", b, got, sess.IsAuthenticated())
			bad++
		}
	}
	return computeStats(time.Since(start), latencies, failures), bad
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
