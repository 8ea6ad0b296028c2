package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"oraclecache/internal/config"
	"oraclecache/internal/httpx"
	"oraclecache/internal/metrics"
	"oraclecache/internal/oracle"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
	"oraclecache/internal/source/jupiter"
	"oraclecache/internal/source/mock"
	"oraclecache/internal/source/pyth"
	"oraclecache/internal/source/ratelimit"
	"oraclecache/internal/source/reflector"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	met := metrics.New(reg)

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	adapters := buildAdapters(cfg, httpClient, log)
	if len(adapters) == 0 {
		log.Warn().Msg("no sources configured; cache will serve nothing")
	}

	svc := oracle.New(adapters, oracle.Config{
		Universe:      cfg.Cache.Universe,
		TTL:           time.Duration(cfg.Cache.TTLSec) * time.Second,
		TickInterval:  time.Duration(cfg.Cache.TickIntervalSec) * time.Second,
		FetchTimeout:  time.Duration(cfg.Cache.FetchTimeoutSec) * time.Second,
		CycleDeadline: time.Duration(cfg.Cache.CycleDeadlineSec) * time.Second,
		MaxParallel:   cfg.Cache.MaxParallelFetches,
	}, log.With().Str("component", "oracle").Logger(), met)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start")
	}

	// SIGHUP swaps the symbol universe without restarting.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			next, err := config.Load(cfgPath)
			if err != nil {
				log.Error().Err(err).Msg("config reload failed, keeping universe")
				continue
			}
			svc.Reload(next.Cache.Universe)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/prices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleGetPrices(w, r, svc)
	})
	mux.HandleFunc("/api/prices/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleSnapshot(w, svc)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scheduler drain")
	}
}

// buildAdapters instantiates enabled sources in configured priority order.
// List position binds the tier: first is Primary, second Secondary, the
// rest Fallback.
func buildAdapters(cfg config.Config, hc *httpx.Client, log zerolog.Logger) []source.Adapter {
	tierFor := func(i int) price.SourceID {
		switch i {
		case 0:
			return price.Primary
		case 1:
			return price.Secondary
		default:
			return price.Fallback
		}
	}

	limited := func(a source.Adapter, rl config.RateLimit) source.Adapter {
		if rl.RPS <= 0 {
			return a
		}
		return ratelimit.Wrap(a, rl.RPS, rl.Burst)
	}

	var adapters []source.Adapter
	for i, name := range cfg.Cache.Sources {
		switch strings.ToLower(name) {
		case "pyth":
			adapters = append(adapters, limited(pyth.New(pyth.Config{
				Tier:    tierFor(i),
				BaseURL: cfg.Pyth.Endpoint,
			}, hc), cfg.Pyth.RateLimit))
		case "jupiter":
			adapters = append(adapters, limited(jupiter.New(jupiter.Config{
				Tier:    tierFor(i),
				BaseURL: cfg.Jupiter.Endpoint,
			}, hc), cfg.Jupiter.RateLimit))
		case "reflector":
			if cfg.Reflector.Endpoint == "" {
				log.Warn().Msg("reflector enabled but endpoint not set; skipping")
				continue
			}
			adapters = append(adapters, limited(reflector.New(reflector.Config{
				Tier:     tierFor(i),
				Endpoint: cfg.Reflector.Endpoint,
				Contract: cfg.Reflector.Contract,
				Symbols:  cfg.Reflector.Symbols,
			}, hc), cfg.Reflector.RateLimit))
		case "mock":
			adapters = append(adapters, mock.New(mock.Config{Tier: tierFor(i)}))
		default:
			log.Warn().Str("source", name).Msg("unknown source in config; skipping")
		}
	}
	return adapters
}

type pricePayload struct {
	price.Record
	Freshness string `json:"freshness"`
}

type pricesResponse struct {
	Prices map[string]pricePayload `json:"prices"`
}

type snapshotResponse struct {
	Prices               map[string]pricePayload `json:"prices"`
	LastCycleCompletedAt int64                   `json:"last_cycle_completed_at"`
}

func handleGetPrices(w http.ResponseWriter, r *http.Request, svc *oracle.Service) {
	q := r.URL.Query().Get("symbols")
	if strings.TrimSpace(q) == "" {
		http.Error(w, "missing symbols query param", http.StatusBadRequest)
		return
	}
	symbols := config.SplitCSV(q)
	if len(symbols) > 100 {
		http.Error(w, "too many symbols (max 100)", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	resp := pricesResponse{Prices: make(map[string]pricePayload, len(symbols))}
	for _, sym := range symbols {
		rec, f, ok := svc.Get(ctx, sym)
		if !ok {
			continue
		}
		resp.Prices[price.Canonical(sym)] = pricePayload{Record: rec, Freshness: f.String()}
	}
	if len(resp.Prices) == 0 {
		http.Error(w, "no prices available for requested symbols", http.StatusNotFound)
		return
	}
	writeJSON(w, resp)
}

func handleSnapshot(w http.ResponseWriter, svc *oracle.Service) {
	snap, lastCycle := svc.Snapshot()
	ttl := svc.TTL()

	resp := snapshotResponse{
		Prices:               make(map[string]pricePayload, len(snap)),
		LastCycleCompletedAt: lastCycle,
	}
	for sym, rec := range snap {
		f := price.Stale
		if time.Since(rec.ObservedAt) < ttl {
			f = price.Fresh
		}
		resp.Prices[sym] = pricePayload{Record: rec, Freshness: f.String()}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
