package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"oraclecache/internal/httpx"
)

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestGetJSON(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodGet, req.Method)
		require.Equal(t, "https://example.test/price?ids=abc", req.URL.String())
		require.Equal(t, "oraclecache/1.0", req.Header.Get("User-Agent"))
		return jsonResponse(http.StatusOK, `{"value": 145.50}`), nil
	})

	var out struct {
		Value json.Number `json:"value"`
	}
	err := c.GetJSON(context.Background(), "https://example.test/price?ids=abc", &out)
	require.NoError(t, err)
	require.Equal(t, "145.50", out.Value.String())
}

func TestPostJSONSendsBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer
	c.Headers = map[string]string{"X-Api-Key": "k"}

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, "application/json", req.Header.Get("Content-Type"))
		require.Equal(t, "k", req.Header.Get("X-Api-Key"))
		b, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.JSONEq(t, `{"function_name": "lastprice"}`, string(b))
		return jsonResponse(http.StatusOK, `{"success": true}`), nil
	})

	in := map[string]string{"function_name": "lastprice"}
	var out struct {
		Success bool `json:"success"`
	}
	err := c.PostJSON(context.Background(), "https://example.test/call", in, &out)
	require.NoError(t, err)
	require.True(t, out.Success)
}

func TestNon2xxBecomesStatusError(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer

	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusServiceUnavailable, "down for maintenance"), nil)

	var out any
	err := c.GetJSON(context.Background(), "https://example.test/x", &out)
	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusServiceUnavailable, se.Code)
	require.Contains(t, se.Body, "maintenance")
}

func TestTransportErrorPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer

	dialErr := errors.New("dial tcp: connection refused")
	doer.EXPECT().Do(gomock.Any()).Return(nil, dialErr)

	var out any
	err := c.GetJSON(context.Background(), "https://example.test/x", &out)
	require.ErrorIs(t, err, dialErr)
}

func TestInvalidBodyIsDecodeError(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer

	doer.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, "<html>"), nil)

	var out any
	err := c.GetJSON(context.Background(), "https://example.test/x", &out)
	require.Error(t, err)
	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestCallerHeadersWin(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := NewMockDoer(ctrl)
	c := httpx.New(time.Second)
	c.HTTP = doer
	c.UserAgent = "custom/2.0"

	doer.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "custom/2.0", req.Header.Get("User-Agent"))
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	var out any
	require.NoError(t, c.GetJSON(context.Background(), "https://example.test/x", &out))
}
