package oracle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"oraclecache/internal/aggregate"
	"oraclecache/internal/metrics"
	"oraclecache/internal/price"
	"oraclecache/internal/scheduler"
	"oraclecache/internal/source"
	"oraclecache/internal/store"
)

// Service is the capability the rest of the system consumes: cached reads,
// consistent snapshots and lifecycle control over the background refresh.
// Share one instance by passing it where it is needed; there is no global.
type Service struct {
	store    *store.Store
	resolver *aggregate.Resolver
	sched    *scheduler.Scheduler
	log      zerolog.Logger

	stopped atomic.Bool
}

type Config struct {
	// Universe is the ordered symbol set the scheduler keeps warm. An
	// empty universe turns the service into a pure on-demand cache.
	Universe []string
	// TTL is the freshness window for reads.
	TTL time.Duration
	// TickInterval is the scheduler period.
	TickInterval time.Duration
	// FetchTimeout bounds one adapter call.
	FetchTimeout time.Duration
	// CycleDeadline bounds one refresh fan-out. Defaults to 2×TickInterval.
	CycleDeadline time.Duration
	// MaxParallel caps concurrent resolves per cycle.
	MaxParallel int
}

// New wires the resolver, store and scheduler. Adapter order is the
// fallback priority.
func New(adapters []source.Adapter, cfg Config, log zerolog.Logger, met *metrics.Set) *Service {
	st := store.New(cfg.TTL, met)
	res := aggregate.New(adapters, cfg.FetchTimeout, log.With().Str("component", "resolver").Logger(), met)
	sched := scheduler.New(res, st, scheduler.Config{
		Universe:      cfg.Universe,
		Interval:      cfg.TickInterval,
		CycleDeadline: cfg.CycleDeadline,
		MaxParallel:   cfg.MaxParallel,
	}, log.With().Str("component", "scheduler").Logger(), met)

	return &Service{
		store:    st,
		resolver: res,
		sched:    sched,
		log:      log,
	}
}

// Start launches the background refresh.
func (s *Service) Start(ctx context.Context) error {
	return s.sched.Start(ctx)
}

// Stop halts refreshing and disables on-demand fetches. Cached records
// stay readable.
func (s *Service) Stop(ctx context.Context) error {
	s.stopped.Store(true)
	return s.sched.Stop(ctx)
}

// Get returns the cached record for symbol tagged with its freshness. A
// miss triggers one on-demand resolution and populates the cache without
// enlarging the scheduler's universe. After Stop, misses simply report
// absent.
func (s *Service) Get(ctx context.Context, symbol string) (price.Record, price.Freshness, bool) {
	if rec, f, ok := s.store.Get(symbol); ok {
		return rec, f, true
	}
	if s.stopped.Load() {
		return price.Record{}, price.Stale, false
	}

	rec, report, ok := s.resolver.Resolve(ctx, symbol)
	if !ok {
		if report.Exhausted() {
			s.log.Debug().Str("symbol", symbol).Int("sources_tried", len(report.Attempts)).Msg("on-demand resolve exhausted")
		}
		return price.Record{}, price.Stale, false
	}
	s.store.Upsert(rec)
	return rec, price.Fresh, true
}

// Snapshot returns an atomic copy of all cached records and the wall time
// of the last completed refresh cycle.
func (s *Service) Snapshot() (map[string]price.Record, int64) {
	return s.store.Snapshot()
}

// TTL is the freshness window reads are judged against.
func (s *Service) TTL() time.Duration { return s.store.TTL() }

// Universe returns the symbols the scheduler currently keeps warm.
func (s *Service) Universe() []string { return s.sched.Universe() }

// Reload installs a new universe and drops cached records for symbols the
// reload removed.
func (s *Service) Reload(universe []string) {
	kept := make(map[string]struct{}, len(universe))
	for _, sym := range universe {
		kept[price.Canonical(sym)] = struct{}{}
	}
	for _, sym := range s.sched.Universe() {
		if _, ok := kept[price.Canonical(sym)]; !ok {
			s.store.Invalidate(sym)
		}
	}
	s.sched.Reload(universe)
}
