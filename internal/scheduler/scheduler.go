package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"oraclecache/internal/aggregate"
	"oraclecache/internal/metrics"
	"oraclecache/internal/price"
	"oraclecache/internal/store"
)

// DefaultInterval is the refresh tick period.
const DefaultInterval = 10 * time.Second

// ErrStopped is returned by Start after Stop; a stopped scheduler is
// terminal.
var ErrStopped = errors.New("scheduler stopped")

type Config struct {
	// Universe is the ordered symbol set kept warm.
	Universe []string
	// Interval between refresh ticks.
	Interval time.Duration
	// CycleDeadline bounds one whole fan-out. Defaults to 2×Interval.
	CycleDeadline time.Duration
	// MaxParallel caps concurrent resolves per cycle. <= 0 means one
	// task per universe symbol.
	MaxParallel int
}

// Scheduler keeps the store continuously warm for the symbol universe.
// Ticks that land while a cycle is still refreshing are skipped, not
// queued: the skip rule is the only backpressure mechanism.
type Scheduler struct {
	resolver *aggregate.Resolver
	store    *store.Store
	log      zerolog.Logger
	met      *metrics.Set

	interval      time.Duration
	cycleDeadline time.Duration
	maxParallel   int

	universe atomic.Pointer[[]string]

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	refreshing atomic.Bool
	cycleID    atomic.Uint64
	skipped    atomic.Uint64
}

func New(resolver *aggregate.Resolver, st *store.Store, cfg Config, log zerolog.Logger, met *metrics.Set) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CycleDeadline <= 0 {
		cfg.CycleDeadline = 2 * cfg.Interval
	}
	s := &Scheduler{
		resolver:      resolver,
		store:         st,
		log:           log,
		met:           met,
		interval:      cfg.Interval,
		cycleDeadline: cfg.CycleDeadline,
		maxParallel:   cfg.MaxParallel,
	}
	universe := append([]string(nil), cfg.Universe...)
	s.universe.Store(&universe)
	return s
}

// Universe returns the current symbol universe snapshot.
func (s *Scheduler) Universe() []string {
	return append([]string(nil), *s.universe.Load()...)
}

// Reload atomically installs a new universe. A cycle already in flight
// keeps the snapshot it captured at entry.
func (s *Scheduler) Reload(universe []string) {
	next := append([]string(nil), universe...)
	s.universe.Store(&next)
	s.log.Info().Int("symbols", len(next)).Msg("symbol universe reloaded")
}

// SkippedTicks reports how many ticks were suppressed by an in-flight
// cycle.
func (s *Scheduler) SkippedTicks() uint64 { return s.skipped.Load() }

// Start launches the ticker loop. It is a no-op while already running and
// returns ErrStopped after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.maybeStartCycle(runCtx)
			}
		}
	}()

	s.log.Info().
		Dur("interval", s.interval).
		Int("universe", len(*s.universe.Load())).
		Msg("refresh scheduler started")
	return nil
}

// Stop cancels any in-flight cycle and waits for it to drain, bounded by
// ctx. The scheduler cannot be restarted and no commit happens afterwards.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info().Msg("refresh scheduler stopped")
	return nil
}

// maybeStartCycle launches a refresh unless one is still running, in which
// case the tick is dropped and counted.
func (s *Scheduler) maybeStartCycle(ctx context.Context) {
	if !s.refreshing.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.met.CycleSkipped()
		s.log.Debug().Uint64("skipped_total", s.skipped.Load()).Msg("tick skipped, cycle in flight")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.refreshing.Store(false)
		s.runCycle(ctx)
	}()
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleID := s.cycleID.Add(1)
	universe := *s.universe.Load()
	s.met.CycleStarted()

	if len(universe) == 0 {
		return
	}

	limit := s.maxParallel
	if limit <= 0 {
		limit = len(universe)
	}

	cycleCtx, cancel := context.WithTimeout(ctx, s.cycleDeadline)
	defer cancel()

	start := time.Now()
	var mu sync.Mutex
	updates := make(map[string]price.Record, len(universe))

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(limit)
	for _, sym := range universe {
		sym := sym
		g.Go(func() error {
			rec, report, ok := s.resolver.Resolve(gctx, sym)
			if !ok {
				// Per-symbol exhaustion never fails the cycle; the
				// symbol keeps its previous record.
				s.log.Debug().Str("symbol", sym).Int("sources_tried", len(report.Attempts)).Msg("symbol exhausted this cycle")
				return nil
			}
			mu.Lock()
			updates[price.Canonical(sym)] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		// Shutdown raced the cycle; last-known-good state stands.
		return
	}
	if len(updates) == 0 {
		s.met.CycleEmpty()
		s.log.Warn().
			Uint64("cycle_id", cycleID).
			Int("universe", len(universe)).
			Msg("cycle resolved no symbols, keeping previous prices")
		return
	}

	s.store.CommitCycle(updates, cycleID)
	s.log.Info().
		Uint64("cycle_id", cycleID).
		Int("updated", len(updates)).
		Int("universe", len(universe)).
		Dur("took", time.Since(start)).
		Msg("refresh cycle committed")
}
