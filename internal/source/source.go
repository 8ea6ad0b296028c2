package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
)

// Adapter presents one upstream provider as a uniform fetch capability.
// Adapters are stateless beyond a shared HTTP client, never retry
// internally, and classify every failure as NotSupported, Transient or
// Malformed. Retry policy belongs to the scheduler.
type Adapter interface {
	Name() string
	Tier() price.SourceID
	Fetch(ctx context.Context, symbol string) (price.Record, error)
}

// NewRecord validates a decoded price and stamps provenance and timestamps.
// wall is unix seconds of the upstream observation; 0 means "now".
func NewRecord(symbol string, p decimal.Decimal, name string, tier price.SourceID, wall int64) (price.Record, error) {
	if p.Sign() <= 0 {
		return price.Record{}, price.MalformedErr(name, fmt.Errorf("non-positive price %s for %s", p, symbol))
	}
	now := time.Now()
	if wall <= 0 {
		wall = now.Unix()
	}
	return price.Record{
		Symbol:     price.Canonical(symbol),
		Price:      p,
		Source:     tier,
		SourceName: name,
		ObservedAt: now,
		WallTime:   wall,
	}, nil
}

// ClassifyHTTP maps transport-level failures onto the error taxonomy.
// Timeouts, network errors, 5xx and 429 are Transient; any other decoded
// status or body means upstream drift and is Malformed.
func ClassifyHTTP(name string, err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) {
		if se.Code >= 500 || se.Code == http.StatusTooManyRequests {
			return price.TransientErr(name, err)
		}
		return price.MalformedErr(name, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return price.MalformedErr(name, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return price.TransientErr(name, err)
	}
	return price.TransientErr(name, err)
}
