package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

// Cache tunes the price cache core. Sources lists enabled adapters in
// priority order; the first entry is consulted first on every resolve.
type Cache struct {
	Universe            []string `json:"universe"`
	Sources             []string `json:"sources"`
	TTLSec              int      `json:"ttl_sec"`
	TickIntervalSec     int      `json:"tick_interval_sec"`
	FetchTimeoutSec     int      `json:"fetch_timeout_sec"`
	CycleDeadlineSec    int      `json:"cycle_deadline_sec"`
	MaxParallelFetches  int      `json:"max_parallel_fetches"`
}

// RateLimit caps calls to one upstream. Zero RPS disables the limiter.
type RateLimit struct {
	RPS   float64 `json:"rps"`
	Burst int     `json:"burst"`
}

type Pyth struct {
	Endpoint  string    `json:"endpoint"`
	RateLimit RateLimit `json:"rate_limit"`
}

type Jupiter struct {
	Endpoint  string    `json:"endpoint"`
	RateLimit RateLimit `json:"rate_limit"`
}

type Reflector struct {
	Endpoint  string    `json:"endpoint"`
	Contract  string    `json:"contract"`
	Symbols   []string  `json:"symbols"`
	RateLimit RateLimit `json:"rate_limit"`
}

type Config struct {
	Server    Server    `json:"server"`
	Cache     Cache     `json:"cache"`
	Pyth      Pyth      `json:"pyth"`
	Jupiter   Jupiter   `json:"jupiter"`
	Reflector Reflector `json:"reflector"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Cache: Cache{
			Universe:        []string{"SOL", "USDC", "BTC", "ETH", "JUP", "RAY", "ORCA"},
			Sources:         []string{"pyth", "jupiter", "mock"},
			TTLSec:          10,
			TickIntervalSec: 10,
			FetchTimeoutSec: 5,
		},
		Pyth: Pyth{
			Endpoint: "https://hermes.pyth.network",
		},
		Jupiter: Jupiter{
			Endpoint: "https://price.jup.ag/v4",
		},
		Reflector: Reflector{
			Contract: "CCYOZJCOPG34LLQQ7N24YXBM7LL62R7ONMZ3G6WZAAYPB5OYKOMJRN63",
		},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("ORACLE_UNIVERSE"); v != "" {
		cfg.Cache.Universe = SplitCSV(v)
	}
	if v := os.Getenv("ORACLE_SOURCES"); v != "" {
		cfg.Cache.Sources = SplitCSV(v)
	}
	if v := os.Getenv("ORACLE_TTL_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.TTLSec = x
		}
	}
	if v := os.Getenv("ORACLE_TICK_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.TickIntervalSec = x
		}
	}
	if v := os.Getenv("ORACLE_FETCH_TIMEOUT_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.FetchTimeoutSec = x
		}
	}
	if v := os.Getenv("ORACLE_CYCLE_DEADLINE_SEC"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.CycleDeadlineSec = x
		}
	}
	if v := os.Getenv("ORACLE_MAX_PARALLEL"); v != "" {
		if x := atoi(v); x > 0 {
			cfg.Cache.MaxParallelFetches = x
		}
	}
	if v := os.Getenv("PYTH_ENDPOINT"); v != "" {
		cfg.Pyth.Endpoint = v
	}
	if v := os.Getenv("JUPITER_ENDPOINT"); v != "" {
		cfg.Jupiter.Endpoint = v
	}
	if v := os.Getenv("REFLECTOR_ENDPOINT"); v != "" {
		cfg.Reflector.Endpoint = v
	}
	if v := os.Getenv("REFLECTOR_CONTRACT"); v != "" {
		cfg.Reflector.Contract = v
	}
	if v := os.Getenv("REFLECTOR_SYMBOLS"); v != "" {
		cfg.Reflector.Symbols = SplitCSV(v)
	}
}

func atoi(s string) int {
	var x int
	fmt.Sscanf(s, "%d", &x)
	return x
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
