package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oraclecache/internal/aggregate"
	"oraclecache/internal/config"
	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
	"oraclecache/internal/source/jupiter"
	"oraclecache/internal/source/mock"
	"oraclecache/internal/source/pyth"
	"oraclecache/internal/source/ratelimit"
	"oraclecache/internal/source/reflector"
)

// fetch resolves symbols once against the configured sources and prints
// the records as JSON. Useful for poking upstreams without a server.
func main() {
	var symbolsCSV string
	var sourcesCSV string
	var timeout int
	var configPath string
	var verbose bool

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "SOL,USDC"), "comma-separated symbols")
	flag.StringVar(&sourcesCSV, "sources", getenv("ORACLE_SOURCES", ""), "source priority order (overrides config)")
	flag.IntVar(&timeout, "timeout", 15, "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.BoolVar(&verbose, "v", false, "log failed source attempts")
	flag.Parse()

	logLevel := zerolog.WarnLevel
	if verbose {
		logLevel = zerolog.DebugLevel
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if sourcesCSV != "" {
		cfg.Cache.Sources = config.SplitCSV(sourcesCSV)
	}

	httpClient := httpx.New(time.Duration(timeout) * time.Second)
	adapters := buildAdapters(cfg, httpClient, log)
	if len(adapters) == 0 {
		log.Fatal().Msg("no sources configured")
	}

	resolver := aggregate.New(adapters, time.Duration(cfg.Cache.FetchTimeoutSec)*time.Second, log, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	type row struct {
		price.Record
		Failed []string `json:"failed_sources,omitempty"`
	}
	out := make(map[string]row)
	for _, sym := range config.SplitCSV(symbolsCSV) {
		rec, report, ok := resolver.Resolve(ctx, sym)
		if !ok {
			var failed []string
			for _, att := range report.Attempts {
				failed = append(failed, fmt.Sprintf("%s:%s", att.Source, att.Kind))
			}
			out[price.Canonical(sym)] = row{Failed: failed}
			continue
		}
		out[price.Canonical(sym)] = row{Record: rec}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal().Err(err).Msg("encode")
	}
}

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
			adapters = append(adapters, limited(pyth.New(pyth.Config{Tier: tierFor(i), BaseURL: cfg.Pyth.Endpoint}, hc), cfg.Pyth.RateLimit))
		case "jupiter":
			adapters = append(adapters, limited(jupiter.New(jupiter.Config{Tier: tierFor(i), BaseURL: cfg.Jupiter.Endpoint}, hc), cfg.Jupiter.RateLimit))
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

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
