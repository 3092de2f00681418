package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/juankaspain/BotV2-sub004/internal/loader"
	"github.com/juankaspain/BotV2-sub004/internal/metrics"
	"github.com/juankaspain/BotV2-sub004/internal/section"
	"github.com/juankaspain/BotV2-sub004/internal/store"
)

func testPositions(n int) []section.PositionRow {
	rows := make([]section.PositionRow, n)
	for i := range rows {
		rows[i] = section.PositionRow{Symbol: fmt.Sprintf("SYM%03d", i), Qty: 1}
	}
	return rows
}

// newTestServer builds a server over an in-memory fetch function.
func newTestServer(t *testing.T, fetch loader.FetchFunc) (*httptest.Server, *DashboardServer) {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	state, err := store.NewStateStore(filepath.Join(t.TempDir(), "state.db"), log)
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	snaps := store.NewSnapshotStore(t.TempDir())
	mon := metrics.NewMonitor(log, 0)

	ld := loader.New(loader.Config{Fetch: fetch, Monitor: mon, Logger: log})
	s := NewDashboardServer(ld, state, snaps, mon, log)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, s
}

func getJSON[T any](t *testing.T, url string) (int, T) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
	return resp.StatusCode, v
}

func TestSectionServedThenCached(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, key string) (any, error) {
		return testPositions(3), nil
	})

	status, first := getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")
	if status != http.StatusOK {
		t.Fatalf("first GET status = %d", status)
	}
	if first.Source != "network" {
		t.Errorf("first source = %q, want network", first.Source)
	}

	status, second := getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")
	if status != http.StatusOK {
		t.Fatalf("second GET status = %d", status)
	}
	if second.Source != "cache" {
		t.Errorf("second source = %q, want cache", second.Source)
	}
}

func TestSectionUnknownKey(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return nil, nil
	})

	status, _ := getJSON[map[string]string](t, ts.URL+"/api/sections/bogus")
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestSectionFetchFailure(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return nil, errors.New("upstream down")
	})

	status, body := getJSON[map[string]string](t, ts.URL+"/api/sections/orders")
	if status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", status)
	}
	if !strings.Contains(body["error"], "orders") {
		t.Errorf("error body = %q, want section key mentioned", body["error"])
	}
}

func TestWindowEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return testPositions(100), nil
	})

	url := ts.URL + "/api/sections/positions/window?offset=0&height=280&rowHeight=28"
	status, win := getJSON[WindowResponse](t, url)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if win.Total != 100 {
		t.Errorf("Total = %d, want 100", win.Total)
	}
	if win.TotalHeight != 100*28 {
		t.Errorf("TotalHeight = %d, want %d", win.TotalHeight, 100*28)
	}
	// 10 visible rows plus 5 overscan below.
	if win.Start != 0 || win.End != 15 {
		t.Errorf("range = [%d,%d), want [0,15)", win.Start, win.End)
	}
	if len(win.Rows) != 15 {
		t.Fatalf("len(Rows) = %d, want 15", len(win.Rows))
	}
	if win.Rows[2].Top != 2*28 {
		t.Errorf("Rows[2].Top = %d, want %d", win.Rows[2].Top, 2*28)
	}
	var row section.PositionRow
	if err := json.Unmarshal([]byte(win.Rows[0].Markup), &row); err != nil {
		t.Fatalf("row markup is not a position: %v", err)
	}
	if row.Symbol != "SYM000" {
		t.Errorf("Rows[0] symbol = %q, want SYM000", row.Symbol)
	}
}

func TestWindowScrolled(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return testPositions(100), nil
	})

	url := ts.URL + "/api/sections/positions/window?offset=560&height=280&rowHeight=28"
	status, win := getJSON[WindowResponse](t, url)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	// Offset 560 = row 20; overscan 5 both sides.
	if win.Start != 15 || win.End != 35 {
		t.Errorf("range = [%d,%d), want [15,35)", win.Start, win.End)
	}
}

func TestWindowWatchlist(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		// The catalog hands back a pointer payload for the watchlist.
		return &section.WatchlistPayload{Name: "primary", Symbols: []string{"AAPL", "MSFT", "NVDA"}}, nil
	})

	status, win := getJSON[WindowResponse](t, ts.URL+"/api/sections/watchlist/window")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if win.Total != 3 {
		t.Errorf("Total = %d, want 3", win.Total)
	}
	var sym string
	if err := json.Unmarshal([]byte(win.Rows[0].Markup), &sym); err != nil {
		t.Fatalf("row markup is not a symbol: %v", err)
	}
	if sym != "AAPL" {
		t.Errorf("Rows[0] = %q, want AAPL", sym)
	}
}

func TestWindowNonListSection(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return section.AccountSummary{Equity: 1000}, nil
	})

	status, _ := getJSON[map[string]string](t, ts.URL+"/api/sections/account/window")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestInvalidateSection(t *testing.T) {
	var fetches atomic.Int32
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		fetches.Add(1)
		return testPositions(1), nil
	})

	getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sections/positions", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}

	_, second := getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")
	if second.Source != "network" {
		t.Errorf("post-invalidate source = %q, want network", second.Source)
	}
	if n := fetches.Load(); n != 2 {
		t.Errorf("fetches = %d, want 2", n)
	}
}

func TestStateRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return nil, nil
	})

	// Missing state reads as null.
	status, st := getJSON[StateResponse](t, ts.URL+"/api/state?key=layout")
	if status != http.StatusOK {
		t.Fatalf("GET missing status = %d", status)
	}
	if string(st.Value) != "null" {
		t.Errorf("missing state value = %s, want null", st.Value)
	}

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/state?key=layout",
		strings.NewReader(`{"columns":2}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT status = %d, want 204", resp.StatusCode)
	}

	_, st = getJSON[StateResponse](t, ts.URL+"/api/state?key=layout")
	if string(st.Value) != `{"columns":2}` {
		t.Errorf("state value = %s, want stored JSON", st.Value)
	}
}

func TestPutStateRejectsInvalidJSON(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return nil, nil
	})

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/state",
		strings.NewReader("not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("PUT status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryRecordedAndServed(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return testPositions(2), nil
	})

	getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")

	date := time.Now().UTC().Format("2006-01-02")
	status, dates := getJSON[DatesResponse](t, ts.URL+"/api/history/dates")
	if status != http.StatusOK {
		t.Fatalf("dates status = %d", status)
	}
	if len(dates.Dates) != 1 || dates.Dates[0] != date {
		t.Fatalf("Dates = %v, want [%s]", dates.Dates, date)
	}

	status, hist := getJSON[HistoryResponse](t, ts.URL+"/api/history/"+date)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	if len(hist.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(hist.Records))
	}
	rec := hist.Records[0]
	if rec.Section != "positions" || rec.Source != "network" {
		t.Errorf("record = %+v, want positions/network", rec)
	}
	var rows []section.PositionRow
	if err := json.Unmarshal(rec.Payload, &rows); err != nil || len(rows) != 2 {
		t.Errorf("payload = %s, want 2 positions", rec.Payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return testPositions(1), nil
	})

	getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")
	getJSON[SectionResponse](t, ts.URL+"/api/sections/positions")

	status, m := getJSON[MetricsResponse](t, ts.URL+"/api/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if m.Cache.Hits != 1 || m.Cache.Misses != 1 {
		t.Errorf("cache hits/misses = %d/%d, want 1/1", m.Cache.Hits, m.Cache.Misses)
	}
	if m.Cache.Size != 1 {
		t.Errorf("cache size = %d, want 1", m.Cache.Size)
	}
	if _, ok := m.Perf.Timers["loader.load"]; !ok {
		t.Errorf("Timers = %v, want loader.load present", m.Perf.Timers)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	ts, srv := newTestServer(t, func(_ context.Context, _ string) (any, error) {
		return testPositions(1), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	// Wait for the server side to register the subscriber.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}

	getJSON[SectionResponse](t, ts.URL+"/api/sections/watchlist")

	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var ev SectionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Type != "section" || ev.Key != "watchlist" || ev.Source != "network" {
		t.Errorf("event = %+v, want section/watchlist/network", ev)
	}
}
