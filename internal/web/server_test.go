package web

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/events"
	"github.com/vadiminshakov/fusiontrader/internal/storage/recorder"
)

type fakeJournal struct {
	records []domain.DecisionEventRecord
}

func (f *fakeJournal) EventsAfter(index uint64) ([]domain.DecisionEventRecord, error) {
	var out []domain.DecisionEventRecord
	for _, r := range f.records {
		if r.Index > index {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeRecorder struct {
	recorder.NoopRecorder
	rows      []recorder.Row
	gotSymbol string
	gotLimit  int
}

func (f *fakeRecorder) Recent(symbol string, limit int) ([]recorder.Row, error) {
	f.gotSymbol, f.gotLimit = symbol, limit
	return f.rows, nil
}

func (f *fakeRecorder) Counts(time.Time) (map[domain.Decision]int, error) {
	return map[domain.Decision]int{domain.DecisionHold: 3, domain.DecisionBuy: 1}, nil
}

type fakeOverrider struct {
	got config.Patch
	err error
}

func (f *fakeOverrider) ApplyOverride(_ context.Context, patch config.Patch) (domain.OverrideEvent, error) {
	f.got = patch
	if f.err != nil {
		return domain.OverrideEvent{}, f.err
	}
	return domain.OverrideEvent{ID: "ov-1", Patch: patch}, nil
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestServer_StaticEndpoints(t *testing.T) {
	h := NewServer(":0", nil, nil, nil, nil, zap.NewNop()).Handler()

	rec := do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fusiontrader decisions")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)

	for _, target := range []string{"/api/decisions", "/api/decisions/counts", "/decisions/stream", "/ws"} {
		assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, target, "").Code, target)
	}
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/override", "{}").Code)
}

func TestServer_RecentDecisions(t *testing.T) {
	rec := &fakeRecorder{rows: []recorder.Row{{ID: "a", Symbol: "BTCUSDc", Decision: domain.DecisionBuy}}}
	h := NewServer(":0", nil, rec, nil, nil, nil).Handler()

	resp := do(t, h, http.MethodGet, "/api/decisions?symbol=BTCUSDc&limit=10000", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"a"`)
	assert.Equal(t, "BTCUSDc", rec.gotSymbol)
	assert.Equal(t, maxRecentLimit, rec.gotLimit)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/decisions?limit=x", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/decisions?limit=0", "").Code)

	resp = do(t, h, http.MethodGet, "/api/decisions/counts?since=2026-01-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"HOLD":3,"BUY":1}`, resp.Body.String())
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/decisions/counts?since=yesterday", "").Code)
}

func TestServer_Override(t *testing.T) {
	ov := &fakeOverrider{}
	h := NewServer(":0", nil, nil, nil, ov, nil).Handler()

	resp := do(t, h, http.MethodPost, "/api/override", `{"global":{"min_equity_pct":45}}`)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"id":"ov-1"`)
	require.Contains(t, ov.got, "global")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/override", `[]`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/override", `{}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/override", "").Code)

	ov.err = errors.New("incorrect 'global.max_drawdown_pct'")
	resp = do(t, h, http.MethodPost, "/api/override", `{"global":{"max_drawdown_pct":-1}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "max_drawdown_pct")
}

func TestServer_JournalStreamReplays(t *testing.T) {
	journal := &fakeJournal{records: []domain.DecisionEventRecord{
		{Index: 1, Type: domain.EventTypeDecision, Event: domain.FinalDecision{Symbol: "BTCUSDc", Decision: domain.DecisionHold}},
		{Index: 2, Type: domain.EventTypeOverride, Event: domain.OverrideEvent{ID: "ov-9"}},
	}}
	srv := httptest.NewServer(NewServer(":0", journal, nil, nil, nil, nil).Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/decisions/stream?after=1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "id: 2", lines[0])
	assert.Equal(t, "event: override", lines[1])
	assert.Contains(t, lines[2], `"id":"ov-9"`)
}

func TestServer_LiveWebsocket(t *testing.T) {
	bus := events.NewBroadcaster(8)
	srv := httptest.NewServer(NewServer(":0", nil, nil, bus, nil, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	bus.Publish(events.DecisionEvent(domain.FinalDecision{Symbol: "XAUUSDc", Decision: domain.DecisionSell}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.KindDecision, got.Kind)
	require.NotNil(t, got.Decision)
	assert.Equal(t, domain.DecisionSell, got.Decision.Decision)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
