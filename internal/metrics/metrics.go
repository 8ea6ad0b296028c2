package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"oraclecache/internal/price"
)

// Set holds the cache's Prometheus collectors. A nil *Set is valid and
// records nothing, which keeps tests free of registry plumbing.
type Set struct {
	cyclesStarted prometheus.Counter
	cyclesSkipped prometheus.Counter
	cyclesEmpty   prometheus.Counter
	sourceFetches *prometheus.CounterVec
	reads         *prometheus.CounterVec
	symbolsFresh  prometheus.Gauge
	symbolsStale  prometheus.Gauge
	cachedSymbols prometheus.Gauge
	fetchDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Set {
	s := &Set{
		cyclesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_cycles_started_total",
			Help: "Refresh cycles started by the scheduler.",
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_cycles_skipped_total",
			Help: "Scheduler ticks skipped because a cycle was still running.",
		}),
		cyclesEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_cycles_empty_total",
			Help: "Cycles that resolved no symbols and preserved prior state.",
		}),
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_source_fetch_total",
			Help: "Per-source fetch attempts by outcome.",
		}, []string{"source", "outcome"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_reads_total",
			Help: "Store reads by freshness of the returned record.",
		}, []string{"freshness"}),
		symbolsFresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_symbols_fresh",
			Help: "Cached symbols currently within the TTL window.",
		}),
		symbolsStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_symbols_stale",
			Help: "Cached symbols currently outside the TTL window.",
		}),
		cachedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "oracle_cached_symbols",
			Help: "Symbols with a record in the store.",
		}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oracle_fetch_duration_seconds",
			Help:    "Per-source fetch latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(
			s.cyclesStarted, s.cyclesSkipped, s.cyclesEmpty,
			s.sourceFetches, s.reads,
			s.symbolsFresh, s.symbolsStale, s.cachedSymbols,
			s.fetchDuration,
		)
	}
	return s
}

func (s *Set) CycleStarted() {
	if s != nil {
		s.cyclesStarted.Inc()
	}
}

func (s *Set) CycleSkipped() {
	if s != nil {
		s.cyclesSkipped.Inc()
	}
}

func (s *Set) CycleEmpty() {
	if s != nil {
		s.cyclesEmpty.Inc()
	}
}

// FetchOK records a successful source fetch and its latency.
func (s *Set) FetchOK(source string, d time.Duration) {
	if s == nil {
		return
	}
	s.sourceFetches.WithLabelValues(source, "ok").Inc()
	s.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// FetchFailed records a failed source fetch with its failure reason.
func (s *Set) FetchFailed(source string, kind price.FailKind, d time.Duration) {
	if s == nil {
		return
	}
	s.sourceFetches.WithLabelValues(source, kind.String()).Inc()
	s.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (s *Set) Read(f price.Freshness) {
	if s != nil {
		s.reads.WithLabelValues(f.String()).Inc()
	}
}

// SetFreshness publishes the store's current fresh/stale split.
func (s *Set) SetFreshness(fresh, stale int) {
	if s == nil {
		return
	}
	s.symbolsFresh.Set(float64(fresh))
	s.symbolsStale.Set(float64(stale))
	s.cachedSymbols.Set(float64(fresh + stale))
}
