package jupiter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// Config for the Jupiter aggregator price API. Jupiter quotes by Solana
// mint address, so symbols are translated through a mint table first.
type Config struct {
	Name    string
	Tier    price.SourceID
	BaseURL string
	// Mints maps canonical symbols to mint addresses.
	Mints map[string]string
}

func DefaultMints() map[string]string {
	btc := "3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh"
	eth := "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs"
	return map[string]string{
		"SOL":  "So11111111111111111111111111111111111111112",
		"USDC": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"USDT": "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
		"BTC":  btc,
		"WBTC": btc,
		"ETH":  eth,
		"WETH": eth,
		"JUP":  "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
		"RAY":  "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R",
		"ORCA": "orcaEKTdK7LKz57vaAYr9QeNsVEPfiu6QeMU1kektZE",
		"BONK": "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		"WIF":  "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm",
	}
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "jupiter"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://price.jup.ag/v4"
	}
	if cfg.Mints == nil {
		cfg.Mints = DefaultMints()
	}
	return &Adapter{cfg: cfg, client: hc}
}

func (a *Adapter) Name() string         { return a.cfg.Name }
func (a *Adapter) Tier() price.SourceID { return a.cfg.Tier }

type priceEntry struct {
	ID    string      `json:"id"`
	Price json.Number `json:"price"`
}

type priceResponse struct {
	Data map[string]priceEntry `json:"data"`
}

func (a *Adapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	mint, ok := a.cfg.Mints[price.Canonical(symbol)]
	if !ok {
		return price.Record{}, price.NotSupportedErr(a.cfg.Name, symbol)
	}

	url := fmt.Sprintf("%s/price?ids=%s", a.cfg.BaseURL, mint)
	var resp priceResponse
	if err := a.client.GetJSON(ctx, url, &resp); err != nil {
		return price.Record{}, source.ClassifyHTTP(a.cfg.Name, err)
	}

	entry, ok := resp.Data[mint]
	if !ok {
		return price.Record{}, price.TransientErr(a.cfg.Name, fmt.Errorf("no quote for mint %s", mint))
	}
	p, err := decimal.NewFromString(entry.Price.String())
	if err != nil {
		return price.Record{}, price.MalformedErr(a.cfg.Name, fmt.Errorf("price %q: %w", entry.Price, err))
	}
	return source.NewRecord(symbol, p, a.cfg.Name, a.cfg.Tier, 0)
}
