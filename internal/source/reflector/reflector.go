package reflector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
	"oraclecache/internal/source"
)

// Reflector publishes asset prices on Stellar via a Soroban contract. The
// adapter invokes the contract's read-only lastprice(Other(symbol)) entry
// through the Soroban call gateway and decodes the raw oracle value.
//
// Reflector prices are fixed-point with 14 decimals.
const priceDecimals = 14

type Config struct {
	Name     string
	Tier     price.SourceID
	Endpoint string // Soroban call gateway URL
	Contract string // Reflector oracle contract id
	Symbols  []string
}

// DefaultSymbols is the asset set the Reflector testnet oracle publishes.
func DefaultSymbols() []string {
	return []string{
		"BTC", "ETH", "XLM", "SOL", "USDT", "USDC", "XRP", "ADA",
		"AVAX", "DOT", "MATIC", "LINK", "DAI", "ATOM", "UNI", "EURC",
	}
}

const defaultContract = "CCYOZJCOPG34LLQQ7N24YXBM7LL62R7ONMZ3G6WZAAYPB5OYKOMJRN63"

type Adapter struct {
	cfg       Config
	client    *httpx.Client
	supported map[string]struct{}
}

func New(cfg Config, hc *httpx.Client) *Adapter {
	if cfg.Name == "" {
		cfg.Name = "reflector"
	}
	if cfg.Contract == "" {
		cfg.Contract = defaultContract
	}
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = DefaultSymbols()
	}
	supported := make(map[string]struct{}, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		supported[price.Canonical(s)] = struct{}{}
	}
	return &Adapter{cfg: cfg, client: hc, supported: supported}
}

func (a *Adapter) Name() string         { return a.cfg.Name }
func (a *Adapter) Tier() price.SourceID { return a.cfg.Tier }

type callRequest struct {
	ContractID   string            `json:"contract_id"`
	FunctionName string            `json:"function_name"`
	Parameters   []json.RawMessage `json:"parameters"`
}

type callResult struct {
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

type callResponse struct {
	Success bool        `json:"success"`
	Result  *callResult `json:"result"`
	Error   *string     `json:"error"`
}

func (a *Adapter) Fetch(ctx context.Context, symbol string) (price.Record, error) {
	sym := price.Canonical(symbol)
	if _, ok := a.supported[sym]; !ok {
		return price.Record{}, price.NotSupportedErr(a.cfg.Name, symbol)
	}

	// lastprice takes an Asset enum; off-chain symbols use the Other variant.
	param, err := json.Marshal(map[string]any{
		"Enum": []any{"Other", map[string]string{"Symbol": sym}},
	})
	if err != nil {
		return price.Record{}, price.MalformedErr(a.cfg.Name, err)
	}
	req := callRequest{
		ContractID:   a.cfg.Contract,
		FunctionName: "lastprice",
		Parameters:   []json.RawMessage{param},
	}

	var resp callResponse
	if err := a.client.PostJSON(ctx, a.cfg.Endpoint, req, &resp); err != nil {
		return price.Record{}, source.ClassifyHTTP(a.cfg.Name, err)
	}
	if !resp.Success || resp.Result == nil {
		reason := "no result"
		if resp.Error != nil {
			reason = *resp.Error
		}
		return price.Record{}, price.TransientErr(a.cfg.Name, fmt.Errorf("contract call failed: %s", reason))
	}

	raw, err := decimal.NewFromString(resp.Result.Price)
	if err != nil {
		return price.Record{}, price.MalformedErr(a.cfg.Name, fmt.Errorf("price %q: %w", resp.Result.Price, err))
	}
	return source.NewRecord(symbol, raw.Shift(-priceDecimals), a.cfg.Name, a.cfg.Tier, resp.Result.Timestamp)
}
