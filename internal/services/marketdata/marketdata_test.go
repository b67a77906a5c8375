package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/pkg/retrier"
)

const envelopeFeed = `{"symbols": [
  {"symbol": "BTCUSDc", "bid": 50000, "ask": 50001, "spread": 1,
   "timeframes": {"H1": {"atr": 40, "adx": 30, "rsi": 72}},
   "timestamp": "2026-01-05T10:00:00Z"},
  "garbage",
  {"bid": 1, "ask": 2},
  {"symbol": "XAUUSDc", "bid": "oops"},
  {"symbol": "XAUUSDc", "bid": 2000, "ask": 2000.3}
]}`

func TestParseFeed_EnvelopeSkipsInvalidItems(t *testing.T) {
	entries, err := ParseFeed([]byte(envelopeFeed), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	btc := entries[0]
	assert.Equal(t, "BTCUSDc", btc.Symbol)
	assert.Equal(t, 50000.0, btc.Bid)
	h1, ok := btc.Timeframe("H1")
	require.True(t, ok)
	require.NotNil(t, h1.ATR)
	assert.Equal(t, 40.0, *h1.ATR)
	assert.False(t, btc.Time().IsZero())

	assert.Equal(t, "XAUUSDc", entries[1].Symbol)
}

func TestParseFeed_BareList(t *testing.T) {
	entries, err := ParseFeed([]byte(`[{"symbol":"BTCUSDc","bid":1,"ask":2}]`), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestParseFeed_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		empty bool
	}{
		{"blank", "  ", true},
		{"no valid items", `[1, 2, {"bid": 3}]`, true},
		{"object without symbols", `{"foo": []}`, false},
		{"scalar", `42`, false},
		{"broken json", `[{"symbol":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFeed([]byte(tt.raw), zap.NewNop())
			require.Error(t, err)
			if tt.empty {
				assert.ErrorIs(t, err, ErrEmptyFeed)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(envelopeFeed), 0o600))

	src := NewSource(path, 0, zap.NewNop())
	require.IsType(t, &FileSource{}, src)

	entries, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.json"), nil).Fetch(context.Background())
	require.Error(t, err)
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(envelopeFeed))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, time.Second, zap.NewNop(),
		WithRetrier(retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Millisecond))),
		WithHeader("X-Token", "secret"))

	entries, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPSource_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := NewSource(srv.URL, time.Second, zap.NewNop())
	require.IsType(t, &HTTPSource{}, src)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
