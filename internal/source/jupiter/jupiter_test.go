package jupiter_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"oraclecache/internal/httpx"
	"oraclecache/internal/price"
	"oraclecache/internal/source/jupiter"
)

const solMint = "So11111111111111111111111111111111111111112"

func newServer(t *testing.T, handler http.HandlerFunc) *jupiter.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return jupiter.New(jupiter.Config{Tier: price.Secondary, BaseURL: srv.URL}, httpx.New(2*time.Second))
}

func TestFetchQuotesByMint(t *testing.T) {
	var gotPath string
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		fmt.Fprintf(w, `{"data": {%q: {"id": %q, "price": 145.50}}}`, solMint, solMint)
	})

	rec, err := a.Fetch(context.Background(), "sol")
	require.NoError(t, err)
	require.Equal(t, "/price?ids="+solMint, gotPath)
	require.Equal(t, "SOL", rec.Symbol)
	require.True(t, rec.Price.Equal(decimal.RequireFromString("145.50")), "price = %s", rec.Price)
	require.Equal(t, "jupiter", rec.SourceName)
	require.Equal(t, price.Secondary, rec.Source)
	require.Nil(t, rec.Confidence)
}

func TestFetchUnknownSymbol(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unsupported symbol must not hit the network")
	})

	_, err := a.Fetch(context.Background(), "PEPE")
	require.Equal(t, price.NotSupported, price.KindOf(err))
}

func TestFetchMissingQuoteIsTransient(t *testing.T) {
	// Jupiter omits mints it has no route for; that is a liquidity gap,
	// not schema drift.
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {}}`))
	})

	_, err := a.Fetch(context.Background(), "SOL")
	require.Error(t, err)
	require.Equal(t, price.Transient, price.KindOf(err))
}

func TestFetchRateLimitIsTransient(t *testing.T) {
	a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := a.Fetch(context.Background(), "SOL")
	require.Error(t, err)
	require.Equal(t, price.Transient, price.KindOf(err))
}

func TestFetchMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"price wrong type", fmt.Sprintf(`{"data": {%q: {"id": %q, "price": true}}}`, solMint, solMint)},
		{"negative price", fmt.Sprintf(`{"data": {%q: {"id": %q, "price": -1}}}`, solMint, solMint)},
		{"not json", "oops"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := a.Fetch(context.Background(), "SOL")
			require.Error(t, err)
			require.Equal(t, price.Malformed, price.KindOf(err))
		})
	}
}
