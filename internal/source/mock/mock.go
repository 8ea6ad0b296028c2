package mock

import (
	"context"

	"github.com/shopspring/decimal"

	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// Adapter serves a fixed price table. It is the last-resort fallback for
// development and demos, and doubles as a deterministic source in tests.
// It never fabricates prices for unknown symbols.
type Adapter struct {
	name   string
	tier   price.SourceID
	prices map[string]decimal.Decimal
}

type Config struct {
	Name   string
	Tier   price.SourceID
	Prices map[string]decimal.Decimal
}

// DefaultPrices mirrors the development price table of the terminal.
func DefaultPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"SOL":  decimal.RequireFromString("145.50"),
		"USDC": decimal.RequireFromString("1.00"),
		"USDT": decimal.RequireFromString("1.00"),
		"BTC":  decimal.RequireFromString("64250.00"),
		"ETH":  decimal.RequireFromString("3100.00"),
		"JUP":  decimal.RequireFromString("1.25"),
		"RAY":  decimal.RequireFromString("2.85"),
		"ORCA": decimal.RequireFromString("0.95"),
		"BONK": decimal.RequireFromString("0.00002150"),
		"WIF":  decimal.RequireFromString("2.15"),
	}
}

func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if cfg.Tier == 0 {
		cfg.Tier = price.Fallback
	}
	if cfg.Prices == nil {
		cfg.Prices = DefaultPrices()
	}
	table := make(map[string]decimal.Decimal, len(cfg.Prices))
	for sym, p := range cfg.Prices {
		table[price.Canonical(sym)] = p
	}
	return &Adapter{name: cfg.Name, tier: cfg.Tier, prices: table}
}

func (a *Adapter) Name() string         { return a.name }
func (a *Adapter) Tier() price.SourceID { return a.tier }

func (a *Adapter) Fetch(_ context.Context, symbol string) (price.Record, error) {
	p, ok := a.prices[price.Canonical(symbol)]
	if !ok {
		return price.Record{}, price.NotSupportedErr(a.name, symbol)
	}
	return source.NewRecord(symbol, p, a.name, a.tier, 0)
}
