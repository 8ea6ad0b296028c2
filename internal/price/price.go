package price

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SourceID is the priority tier of an upstream provider. Lower tiers are
// consulted first when resolving a symbol.
type SourceID uint8

const (
	Primary SourceID = iota
	Secondary
	Fallback
)

func (s SourceID) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	case Fallback:
		return "fallback"
	}
	return "unknown"
}

// Freshness tags a read against the store's TTL window.
type Freshness int

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Fresh {
		return "fresh"
	}
	return "stale"
}

// Record is the canonical price for one symbol from one source.
// Records are replaced wholesale on update, never field-patched.
type Record struct {
	Symbol string `json:"symbol"`
	// Price is strictly positive. Decimal keeps base-10 exactness through
	// the cache; rounding for display is the consumer's concern.
	Price      decimal.Decimal  `json:"price"`
	Confidence *decimal.Decimal `json:"confidence,omitempty"`
	Change24h  *decimal.Decimal `json:"change_24h,omitempty"`
	Source     SourceID         `json:"-"`
	SourceName string           `json:"source"`
	// ObservedAt carries Go's monotonic reading and drives TTL checks.
	ObservedAt time.Time `json:"-"`
	// WallTime is unix seconds for display only. Never used for TTL.
	WallTime int64 `json:"last_updated"`
}

// Canonical returns the cache key for a symbol: upper-cased and trimmed.
// Records and store lookups both use the canonical form.
func Canonical(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
