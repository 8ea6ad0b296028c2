package ratelimit

import (
	"context"
	"sync"
	"time"

	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// TokenBucket is a stdlib token bucket limiter.
// rate is tokens per second, capacity is the burst ceiling.
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * 1e9)
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Adapter gates an upstream source with a token bucket so fan-out cycles
// cannot trip upstream rate limits. Waiting counts against the per-call
// deadline; a call that cannot obtain a token in time fails Transient and
// the resolver falls back to the next source.
type Adapter struct {
	next source.Adapter
	tb   *TokenBucket
}

func Wrap(next source.Adapter, tokensPerSecond float64, burst int) *Adapter {
	return &Adapter{next: next, tb: NewTokenBucket(tokensPerSecond, burst)}
}

func (a *Adapter) Name() string         { return a.next.Name() }
func (a *Adapter) Tier() price.SourceID { return a.next.Tier() }

func (a *Adapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	if err := a.tb.wait(ctx); err != nil {
		return price.Record{}, price.TransientErr(a.next.Name(), err)
	}
	return a.next.Fetch(ctx, symbol)
}
