package pyth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// Config for the Pyth Hermes adapter. Hermes serves the latest on-chain
// price feed updates over plain HTTP.
type Config struct {
	Name    string
	Tier    price.SourceID
	BaseURL string
	// Feeds maps canonical symbols to 32-byte hex price feed ids.
	// Feed ids are stable and published at pyth.network/developers/price-feed-ids.
	Feeds map[string]string
}

// DefaultFeeds covers the majors the terminal trades.
func DefaultFeeds() map[string]string {
	sol := "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"
	btc := "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"
	eth := "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"
	return map[string]string{
		"SOL":  sol,
		"BTC":  btc,
		"WBTC": btc,
		"ETH":  eth,
		"WETH": eth,
		"USDC": "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",
		"USDT": "0x2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b",
	}
}

type Adapter struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "pyth"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://hermes.pyth.network"
	}
	if cfg.Feeds == nil {
		cfg.Feeds = DefaultFeeds()
	}
	return &Adapter{cfg: cfg, client: hc}
}

func (a *Adapter) Name() string         { return a.cfg.Name }
func (a *Adapter) Tier() price.SourceID { return a.cfg.Tier }

// feed payload: price is an integer string scaled by 10^expo.
type feedData struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type feed struct {
	ID       string   `json:"id"`
	Price    feedData `json:"price"`
	EMAPrice feedData `json:"ema_price"`
}

func (a *Adapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	id, ok := a.cfg.Feeds[price.Canonical(symbol)]
	if !ok {
		return price.Record{}, price.NotSupportedErr(a.cfg.Name, symbol)
	}

	url := fmt.Sprintf("%s/api/latest_price_feeds?ids[]=%s", a.cfg.BaseURL, id)
	var feeds []feed
	if err := a.client.GetJSON(ctx, url, &feeds); err != nil {
		return price.Record{}, source.ClassifyHTTP(a.cfg.Name, err)
	}
	if len(feeds) == 0 {
		return price.Record{}, price.MalformedErr(a.cfg.Name, fmt.Errorf("empty feed response for %s", symbol))
	}

	raw, err := strconv.ParseInt(feeds[0].Price.Price, 10, 64)
	if err != nil {
		return price.Record{}, price.MalformedErr(a.cfg.Name, fmt.Errorf("price %q: %w", feeds[0].Price.Price, err))
	}
	expo := feeds[0].Price.Expo

	rec, err := source.NewRecord(symbol, decimal.New(raw, expo), a.cfg.Name, a.cfg.Tier, feeds[0].Price.PublishTime)
	if err != nil {
		return price.Record{}, err
	}
	// Confidence shares the price exponent. Optional: skipped when absent
	// or unparsable, an invalid interval is not worth failing the fetch.
	if confRaw, err := strconv.ParseInt(feeds[0].Price.Conf, 10, 64); err == nil && confRaw >= 0 {
		conf := decimal.New(confRaw, expo)
		rec.Confidence = &conf
	}
	return rec, nil
}
