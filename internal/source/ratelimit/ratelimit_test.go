package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"oraclecache/internal/price"
)

type countingAdapter struct {
	calls int
}

func (c *countingAdapter) Name() string         { return "counting" }
func (c *countingAdapter) Tier() price.SourceID { return price.Primary }

func (c *countingAdapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	c.calls++
	return price.Record{Symbol: symbol, Price: decimal.NewFromInt(1)}, nil
}

func TestBurstThenThrottle(t *testing.T) {
	inner := &countingAdapter{}
	a := Wrap(inner, 1000, 3)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := a.Fetch(ctx, "SOL"); err != nil {
			t.Fatalf("burst fetch %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("burst was throttled: %v", elapsed)
	}
	if inner.calls != 3 {
		t.Fatalf("calls = %d", inner.calls)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	inner := &countingAdapter{}
	// one token per hour, bucket drained by the first call
	a := Wrap(inner, 1.0/3600, 1)

	if _, err := a.Fetch(context.Background(), "SOL"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := a.Fetch(ctx, "SOL")
	if err == nil {
		t.Fatalf("expected deadline while waiting for a token")
	}
	if price.KindOf(err) != price.Transient {
		t.Fatalf("kind = %v, want Transient", price.KindOf(err))
	}
	if inner.calls != 1 {
		t.Fatalf("throttled call reached the upstream")
	}
}

func TestWrapPreservesIdentity(t *testing.T) {
	a := Wrap(&countingAdapter{}, 10, 1)
	if a.Name() != "counting" || a.Tier() != price.Primary {
		t.Fatalf("wrapper changed identity: %s/%v", a.Name(), a.Tier())
	}
}
