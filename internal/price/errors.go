package price

import (
	"context"
	"errors"
	"fmt"
)

// FailKind classifies why a source could not serve a symbol.
type FailKind int

const (
	// NotSupported means the source has no mapping for the symbol.
	NotSupported FailKind = iota
	// Transient covers timeouts, network failures and upstream 5xx.
	Transient
	// Malformed means the response did not decode or violated an invariant
	// (non-positive price, missing field). Falls back like Transient but is
	// logged at higher severity.
	Malformed
)

func (k FailKind) String() string {
	switch k {
	case NotSupported:
		return "not_supported"
	case Transient:
		return "transient"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// SourceError is a classified adapter failure. Adapter errors are data:
// they never escape the aggregator.
type SourceError struct {
	Kind   FailKind
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func NotSupportedErr(source, symbol string) error {
	return &SourceError{Kind: NotSupported, Source: source, Err: fmt.Errorf("no mapping for symbol %q", symbol)}
}

func TransientErr(source string, err error) error {
	return &SourceError{Kind: Transient, Source: source, Err: err}
}

func MalformedErr(source string, err error) error {
	return &SourceError{Kind: Malformed, Source: source, Err: err}
}

// KindOf classifies any error from a fetch attempt. Deadline expiry and
// cancellation count as Transient; anything unclassified does too.
func KindOf(err error) FailKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Transient
	}
	return Transient
}
