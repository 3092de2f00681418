package httpapi

import (
	"encoding/json"

	"github.com/juankaspain/BotV2-sub004/internal/metrics"
	"github.com/juankaspain/BotV2-sub004/internal/render"
)

// SectionResponse is one served section.
type SectionResponse struct {
	Key       string `json:"key"`
	Source    string `json:"source"`
	ElapsedMs int64  `json:"elapsedMs"`
	Data      any    `json:"data"`
}

// WindowResponse is the materialized slice of a list-shaped section for a
// scroll position. Rows carry absolute pixel offsets so the client can
// position them inside a spacer of TotalHeight.
type WindowResponse struct {
	Key         string       `json:"key"`
	Offset      int          `json:"offset"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
	Total       int          `json:"total"`
	TotalHeight int          `json:"totalHeight"`
	Rows        []render.Row `json:"rows"`
}

// StateResponse is one persisted UI state blob.
type StateResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DatesResponse lists dates that have snapshot history.
type DatesResponse struct {
	Dates []string `json:"dates"`
}

// SnapshotJSON is one history record.
type SnapshotJSON struct {
	Section   string          `json:"section"`
	TakenAt   int64           `json:"takenAt"` // unix millis
	Source    string          `json:"source"`
	ElapsedMs int64           `json:"elapsedMs"`
	Payload   json.RawMessage `json:"payload"`
}

// HistoryResponse is the snapshot history for one date.
type HistoryResponse struct {
	Date    string         `json:"date"`
	Records []SnapshotJSON `json:"records"`
}

// CacheStatsJSON mirrors the section cache's counters.
type CacheStatsJSON struct {
	Size        int      `json:"size"`
	Capacity    int      `json:"capacity"`
	Hits        uint64   `json:"hits"`
	Misses      uint64   `json:"misses"`
	Evictions   uint64   `json:"evictions"`
	Expirations uint64   `json:"expirations"`
	Keys        []string `json:"keys"`
}

// MetricsResponse is the /api/metrics payload.
type MetricsResponse struct {
	Perf  metrics.Snapshot `json:"perf"`
	Cache CacheStatsJSON   `json:"cache"`
}

// SectionEvent is broadcast to WebSocket subscribers after every served
// section.
type SectionEvent struct {
	Type      string `json:"type"` // always "section"
	Key       string `json:"key"`
	Source    string `json:"source"`
	ElapsedMs int64  `json:"elapsedMs"`
}
