// Package httpapi serves the dashboard's JSON API and the WebSocket
// update hub on top of the section loader.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/juankaspain/BotV2-sub004/internal/loader"
	"github.com/juankaspain/BotV2-sub004/internal/metrics"
	"github.com/juankaspain/BotV2-sub004/internal/render"
	"github.com/juankaspain/BotV2-sub004/internal/section"
	"github.com/juankaspain/BotV2-sub004/internal/store"
)

const (
	defaultRowHeight = 28
	defaultOverscan  = 5
	maxStateBytes    = 1 << 20
)

// DashboardServer serves the dashboard HTTP API.
type DashboardServer struct {
	loader *loader.Loader
	state  *store.StateStore
	snaps  *store.SnapshotStore
	mon    *metrics.Monitor
	hub    *Hub
	log    *slog.Logger
}

// NewDashboardServer wires the API over its collaborators. state and snaps
// may be nil; the corresponding endpoints then report unavailability.
func NewDashboardServer(
	ld *loader.Loader,
	state *store.StateStore,
	snaps *store.SnapshotStore,
	mon *metrics.Monitor,
	log *slog.Logger,
) *DashboardServer {
	return &DashboardServer{
		loader: ld,
		state:  state,
		snaps:  snaps,
		mon:    mon,
		hub:    NewHub(log),
		log:    log,
	}
}

// Hub exposes the server's WebSocket hub so the serving binary can attach
// other publishers.
func (s *DashboardServer) Hub() *Hub { return s.hub }

// RegisterRoutes registers all API routes on the given mux.
func (s *DashboardServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sections/{key}", s.handleSection)
	mux.HandleFunc("GET /api/sections/{key}/window", s.handleWindow)
	mux.HandleFunc("DELETE /api/sections/{key}", s.handleInvalidate)
	mux.HandleFunc("GET /api/state", s.handleGetState)
	mux.HandleFunc("PUT /api/state", s.handlePutState)
	mux.HandleFunc("GET /api/history/dates", s.handleHistoryDates)
	mux.HandleFunc("GET /api/history/{date}", s.handleHistory)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/ws", s.hub.handleWS)
}

// Handler returns an http.Handler with CORS middleware.
func (s *DashboardServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ---- sections ----

func (s *DashboardServer) handleSection(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !section.Known(key) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown section %q", key))
		return
	}

	res, err := s.loader.Load(r.Context(), key)
	if err != nil {
		s.writeLoadError(w, key, err)
		return
	}

	s.afterServe(res)
	writeJSON(w, SectionResponse{
		Key:       res.Key,
		Source:    string(res.Source),
		ElapsedMs: res.Elapsed.Milliseconds(),
		Data:      res.Data,
	})
}

func (s *DashboardServer) writeLoadError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, loader.ErrLoadInProgress):
		writeError(w, http.StatusConflict, "a section load is already in progress")
	case errors.Is(err, loader.ErrSuperseded):
		writeError(w, http.StatusConflict, "request superseded by a newer one")
	default:
		s.log.Warn("section load failed", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("loading %s: %v", key, err))
	}
}

// afterServe broadcasts the update and appends a history record for
// network-served sections. Both are best-effort.
func (s *DashboardServer) afterServe(res *loader.Result) {
	s.hub.Broadcast(SectionEvent{
		Type:      "section",
		Key:       res.Key,
		Source:    string(res.Source),
		ElapsedMs: res.Elapsed.Milliseconds(),
	})

	if s.snaps == nil || res.Source != loader.SourceNetwork {
		return
	}
	payload, err := json.Marshal(res.Data)
	if err != nil {
		s.log.Warn("encoding snapshot payload", "key", res.Key, "error", err)
		return
	}
	now := time.Now().UTC()
	rec := store.SnapshotRecord{
		Section:   res.Key,
		Date:      now.Format("2006-01-02"),
		TakenAt:   now,
		Source:    string(res.Source),
		ElapsedMs: res.Elapsed.Milliseconds(),
		Payload:   string(payload),
	}
	if err := s.snaps.Append([]store.SnapshotRecord{rec}); err != nil {
		s.log.Warn("appending snapshot", "key", res.Key, "error", err)
	}
}

func (s *DashboardServer) handleWindow(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !section.Known(key) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown section %q", key))
		return
	}

	q := r.URL.Query()
	offset := queryInt(q.Get("offset"), 0)
	height := queryInt(q.Get("height"), 600)
	rowHeight := queryInt(q.Get("rowHeight"), defaultRowHeight)
	if rowHeight <= 0 {
		rowHeight = defaultRowHeight
	}

	res, err := s.loader.Load(r.Context(), key)
	if err != nil {
		s.writeLoadError(w, key, err)
		return
	}
	s.afterServe(res)

	items, ok := sectionItems(res.Data)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("section %s is not list-shaped", key))
		return
	}

	win := render.NewVirtualWindow(render.Config{
		ItemHeight:     rowHeight,
		Overscan:       defaultOverscan,
		ViewportHeight: height,
	}, func(item json.RawMessage, _ int) string {
		return string(item)
	}, render.WithMonitor(s.mon))
	win.SetData(items)
	win.HandleScroll(offset)

	start, end := win.Range()
	writeJSON(w, WindowResponse{
		Key:         key,
		Offset:      offset,
		Start:       start,
		End:         end,
		Total:       win.Len(),
		TotalHeight: win.TotalHeight(),
		Rows:        win.Rows(),
	})
}

func (s *DashboardServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !section.Known(key) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown section %q", key))
		return
	}
	s.loader.Invalidate(key)
	w.WriteHeader(http.StatusNoContent)
}

// sectionItems flattens a list-shaped section payload into per-row JSON.
func sectionItems(data any) ([]json.RawMessage, bool) {
	var n int
	switch v := data.(type) {
	case []section.PositionRow:
		n = len(v)
	case []section.OrderRow:
		n = len(v)
	case []section.NewsItem:
		n = len(v)
	case []section.BarRow:
		n = len(v)
	case section.WatchlistPayload:
		n = len(v.Symbols)
		data = v.Symbols
	case *section.WatchlistPayload:
		n = len(v.Symbols)
		data = v.Symbols
	case []string:
		n = len(v)
	default:
		return nil, false
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	items := make([]json.RawMessage, 0, n)
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	return items, true
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ---- UI state ----

func (s *DashboardServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeError(w, http.StatusServiceUnavailable, "state store not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		key = "ui"
	}

	value, err := s.state.Load(r.Context(), key)
	if err != nil {
		s.log.Warn("loading ui state", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	if value == "" {
		value = "null"
	}
	writeJSON(w, StateResponse{Key: key, Value: json.RawMessage(value)})
}

func (s *DashboardServer) handlePutState(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeError(w, http.StatusServiceUnavailable, "state store not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		key = "ui"
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "state must be valid JSON")
		return
	}

	if err := s.state.Save(r.Context(), key, string(body)); err != nil {
		s.log.Warn("saving ui state", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- history ----

func (s *DashboardServer) handleHistoryDates(w http.ResponseWriter, r *http.Request) {
	if s.snaps == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store not configured")
		return
	}
	dates, err := s.snaps.Dates()
	if err != nil {
		s.log.Warn("listing snapshot dates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list dates")
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, DatesResponse{Dates: dates})
}

func (s *DashboardServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.snaps == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store not configured")
		return
	}
	date := r.PathValue("date")
	sectionKey := r.URL.Query().Get("section")

	records, err := s.snaps.Read(date, sectionKey)
	if err != nil {
		s.log.Warn("reading snapshots", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	out := make([]SnapshotJSON, 0, len(records))
	for _, rec := range records {
		payload := json.RawMessage(rec.Payload)
		if !json.Valid(payload) {
			payload = json.RawMessage("null")
		}
		out = append(out, SnapshotJSON{
			Section:   rec.Section,
			TakenAt:   rec.TakenAt.UnixMilli(),
			Source:    rec.Source,
			ElapsedMs: rec.ElapsedMs,
			Payload:   payload,
		})
	}
	writeJSON(w, HistoryResponse{Date: date, Records: out})
}

// ---- metrics ----

func (s *DashboardServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.loader.CacheStats()
	keys := stats.Keys
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, MetricsResponse{
		Perf: s.mon.Snapshot(),
		Cache: CacheStatsJSON{
			Size:        stats.Size,
			Capacity:    stats.Capacity,
			Hits:        stats.Hits,
			Misses:      stats.Misses,
			Evictions:   stats.Evictions,
			Expirations: stats.Expirations,
			Keys:        keys,
		},
	})
}
