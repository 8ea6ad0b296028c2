package oracle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

type fakeAdapter struct {
	name  string
	calls atomic.Int32
	fetch func(ctx context.Context, symbol string) (price.Record, error)
}

func (f *fakeAdapter) Name() string         { return f.name }
func (f *fakeAdapter) Tier() price.SourceID { return price.Primary }

func (f *fakeAdapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	f.calls.Add(1)
	return f.fetch(ctx, symbol)
}

func tableAdapter(prices map[string]string) *fakeAdapter {
	return &fakeAdapter{name: "table", fetch: func(ctx context.Context, symbol string) (price.Record, error) {
		p, ok := prices[price.Canonical(symbol)]
		if !ok {
			return price.Record{}, price.NotSupportedErr("table", symbol)
		}
		return price.Record{
			Symbol:     price.Canonical(symbol),
			Price:      decimal.RequireFromString(p),
			SourceName: "table",
			ObservedAt: time.Now(),
		}, nil
	}}
}

func newService(adapter source.Adapter, universe ...string) *Service {
	return New([]source.Adapter{adapter}, Config{
		Universe:     universe,
		TTL:          time.Minute,
		TickInterval: time.Hour, // ticks never fire, tests drive reads
	}, zerolog.Nop(), nil)
}

func TestGetOnDemandPopulatesCache(t *testing.T) {
	adapter := tableAdapter(map[string]string{"WIF": "2.15"})
	svc := newService(adapter)

	rec, f, ok := svc.Get(context.Background(), "wif")
	if !ok {
		t.Fatalf("on-demand resolve failed")
	}
	if f != price.Fresh {
		t.Fatalf("freshness = %v", f)
	}
	if !rec.Price.Equal(decimal.RequireFromString("2.15")) {
		t.Fatalf("price = %s", rec.Price)
	}

	// Second read is served from the store.
	if _, _, ok := svc.Get(context.Background(), "WIF"); !ok {
		t.Fatalf("cached read failed")
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Fatalf("adapter consulted %d times, want 1", got)
	}

	// On-demand fills never grow the scheduled universe.
	if got := svc.Universe(); len(got) != 0 {
		t.Fatalf("universe grew to %v", got)
	}
}

func TestGetUnresolvableSymbol(t *testing.T) {
	svc := newService(tableAdapter(nil))
	if _, _, ok := svc.Get(context.Background(), "XYZ"); ok {
		t.Fatalf("unresolvable symbol reported a price")
	}
}

func TestGetAfterStopServesCacheOnly(t *testing.T) {
	adapter := tableAdapter(map[string]string{"SOL": "145.50", "BTC": "64250"})
	svc := newService(adapter, "SOL")

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, ok := svc.Get(context.Background(), "SOL"); !ok {
		t.Fatalf("warm read failed")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Cached records stay readable.
	if _, _, ok := svc.Get(context.Background(), "SOL"); !ok {
		t.Fatalf("cached record gone after stop")
	}
	// Misses no longer trigger fetches.
	calls := adapter.calls.Load()
	if _, _, ok := svc.Get(context.Background(), "BTC"); ok {
		t.Fatalf("stopped service fetched on demand")
	}
	if adapter.calls.Load() != calls {
		t.Fatalf("adapter consulted after stop")
	}
}

func TestSnapshot(t *testing.T) {
	svc := newService(tableAdapter(map[string]string{"SOL": "145.50", "BTC": "64250"}))
	svc.Get(context.Background(), "SOL")
	svc.Get(context.Background(), "BTC")

	snap, _ := svc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	if _, ok := snap["SOL"]; !ok {
		t.Fatalf("SOL missing from snapshot")
	}
}

func TestReloadInvalidatesDroppedSymbols(t *testing.T) {
	adapter := tableAdapter(map[string]string{"SOL": "145.50", "BTC": "64250"})
	svc := newService(adapter, "SOL", "BTC")

	svc.Get(context.Background(), "SOL")
	svc.Get(context.Background(), "BTC")

	svc.Reload([]string{"SOL"})

	snap, _ := svc.Snapshot()
	if _, ok := snap["BTC"]; ok {
		t.Fatalf("dropped symbol still cached after reload")
	}
	if _, ok := snap["SOL"]; !ok {
		t.Fatalf("kept symbol lost on reload")
	}
	if got := svc.Universe(); len(got) != 1 || got[0] != "SOL" {
		t.Fatalf("universe = %v", got)
	}
}
