package price

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailKind
	}{
		{"not supported", NotSupportedErr("pyth", "DOGE"), NotSupported},
		{"transient", TransientErr("jupiter", errors.New("503")), Transient},
		{"malformed", MalformedErr("pyth", errors.New("bad json")), Malformed},
		{"wrapped source error", fmt.Errorf("fetch: %w", MalformedErr("pyth", errors.New("x"))), Malformed},
		{"deadline", context.DeadlineExceeded, Transient},
		{"canceled", context.Canceled, Transient},
		{"plain error", errors.New("boom"), Transient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSourceErrorUnwrap(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := TransientErr("jupiter", inner)
	if !errors.Is(err, inner) {
		t.Fatalf("inner error lost through wrapping")
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct{ in, want string }{
		{"sol", "SOL"},
		{" btc ", "BTC"},
		{"ETH", "ETH"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Canonical(tc.in); got != tc.want {
			t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
