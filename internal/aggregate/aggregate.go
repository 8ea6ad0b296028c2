package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"oraclecache/internal/metrics"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// DefaultFetchTimeout bounds a single adapter call.
const DefaultFetchTimeout = 5 * time.Second

// Attempt records one failed source consultation.
type Attempt struct {
	Source string
	Kind   price.FailKind
	Err    error
}

// Report explains why a symbol could not be resolved, per source tried.
type Report struct {
	Symbol   string
	Attempts []Attempt
}

// Exhausted reports whether every consulted source failed.
func (r Report) Exhausted() bool { return len(r.Attempts) > 0 }

// Resolver produces one record per symbol using source-priority fallback:
// adapters are consulted in configured order and the first success wins.
type Resolver struct {
	fetchTimeout time.Duration
	log          zerolog.Logger
	met          *metrics.Set

	mu       sync.RWMutex
	adapters []source.Adapter
}

func New(adapters []source.Adapter, fetchTimeout time.Duration, log zerolog.Logger, met *metrics.Set) *Resolver {
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	return &Resolver{
		fetchTimeout: fetchTimeout,
		log:          log,
		met:          met,
		adapters:     adapters,
	}
}

// SetAdapters replaces the adapter list. Resolutions already in flight
// complete against the list they captured at entry.
func (r *Resolver) SetAdapters(adapters []source.Adapter) {
	r.mu.Lock()
	r.adapters = adapters
	r.mu.Unlock()
}

func (r *Resolver) snapshot() []source.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters
}

// Resolve consults sources in priority order with a per-call deadline.
// ok is false when the adapter set is empty or every source failed; the
// report then carries the per-source reasons. No synthetic record is ever
// produced.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (price.Record, Report, bool) {
	report := Report{Symbol: symbol}

	for _, a := range r.snapshot() {
		if ctx.Err() != nil {
			report.Attempts = append(report.Attempts, Attempt{Source: a.Name(), Kind: price.Transient, Err: ctx.Err()})
			break
		}

		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		start := time.Now()
		rec, err := a.Fetch(fetchCtx, symbol)
		elapsed := time.Since(start)
		cancel()

		if err == nil {
			r.met.FetchOK(a.Name(), elapsed)
			return rec, report, true
		}

		kind := price.KindOf(err)
		r.met.FetchFailed(a.Name(), kind, elapsed)
		report.Attempts = append(report.Attempts, Attempt{Source: a.Name(), Kind: kind, Err: err})

		ev := r.log.Debug()
		if kind == price.Malformed {
			// Malformed falls back like Transient but points at upstream
			// schema drift, keep it visible.
			ev = r.log.Warn()
		}
		ev.Str("symbol", symbol).Str("source", a.Name()).
			Str("reason", kind.String()).Err(err).
			Msg("source fetch failed")
	}

	return price.Record{}, report, false
}
