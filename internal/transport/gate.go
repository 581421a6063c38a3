// Package transport wraps every outbound call to an external photo service
// with the protective machinery the services demand: a token-bucket rate
// limit, a concurrency cap, exponential backoff with jitter for transient
// failures, and a circuit breaker that fails fast while a service is down.
// One Gate guards one service; adapters stay free of retry logic.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/photokeep/photosync/pkg/errors"
	"github.com/photokeep/photosync/pkg/logging"
)

// Config tunes one service gate. Zero values fall back to the defaults below.
type Config struct {
	RequestsPerSecond float64       // Token-bucket refill rate
	Burst             int           // Token-bucket capacity
	MaxConcurrent     int           // In-flight call cap
	MaxAttempts       int           // Total attempts per call, including the first
	BaseDelay         time.Duration // First backoff delay
	MaxDelay          time.Duration // Backoff ceiling
	BreakerThreshold  int           // Consecutive failures before the breaker opens
	BreakerCooldown   time.Duration // How long the breaker stays open
}

func (c Config) withDefaults() Config {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = time.Minute
	}
	return c
}

// Gate serializes access to one external service.
type Gate struct {
	service string
	cfg     Config
	limiter *rate.Limiter
	sem     chan struct{}

	mu        sync.Mutex
	failures  int       // consecutive transient failures
	openUntil time.Time // breaker open deadline, zero when closed

	now   func() time.Time                           // test hook
	sleep func(context.Context, time.Duration) error // test hook
}

// NewGate creates a gate for one service.
func NewGate(service string, cfg Config) *Gate {
	cfg = cfg.withDefaults()
	return &Gate{
		service: service,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Do runs fn under the gate. Transient failures are retried with backoff up
// to the attempt limit; permanent failures and context cancellation return
// immediately. While the breaker is open every call fails fast with
// ErrCircuitOpen.
func (g *Gate) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	log := logging.FromContext(ctx).With().
		Str("service", g.service).
		Str("operation", operation).
		Logger()

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.checkBreaker(); err != nil {
			return err
		}

		select {
		case g.sem <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", errors.ErrCanceled, ctx.Err())
		}
		err := func() error {
			defer func() { <-g.sem }()
			if err := g.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %v", errors.ErrCanceled, err)
			}
			return fn(ctx)
		}()

		if err == nil {
			g.recordSuccess()
			return nil
		}
		if ctx.Err() != nil || errors.IsCanceled(err) {
			return err
		}
		if !errors.IsTransient(err) {
			g.recordSuccess() // permanent errors do not indicate outage
			return err
		}

		g.recordFailure()
		lastErr = err
		if attempt == g.cfg.MaxAttempts {
			break
		}

		delay := g.backoff(attempt, err)
		log.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("transient failure, backing off")
		if err := g.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// backoff computes the delay before the next attempt, honoring an explicit
// Retry-After when the service sent one.
func (g *Gate) backoff(attempt int, err error) time.Duration {
	var transient *errors.TransientServiceError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return transient.RetryAfter
	}
	delay := g.cfg.BaseDelay << (attempt - 1)
	if delay > g.cfg.MaxDelay {
		delay = g.cfg.MaxDelay
	}
	// Full jitter keeps concurrent retries from synchronizing.
	return time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
}

func (g *Gate) checkBreaker() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openUntil.IsZero() {
		return nil
	}
	if g.now().Before(g.openUntil) {
		return fmt.Errorf("%w: service %s", errors.ErrCircuitOpen, g.service)
	}
	// Cooldown elapsed: half-open, let the next call probe the service.
	g.openUntil = time.Time{}
	g.failures = g.cfg.BreakerThreshold - 1
	return nil
}

func (g *Gate) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.openUntil = time.Time{}
}

func (g *Gate) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= g.cfg.BreakerThreshold {
		g.openUntil = g.now().Add(g.cfg.BreakerCooldown)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrCanceled, ctx.Err())
	}
}
