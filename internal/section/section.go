// Package section defines the dashboard's content sections and their
// Alpaca-backed fetchers. Each section is addressed by a stable string key
// that the loading layer uses for caching, deduplication, and cancellation.
package section

import (
	"fmt"
	"strings"
	"time"
)

// Well-known section keys, in navigation order.
const (
	KeyAccount   = "account"
	KeyPositions = "positions"
	KeyOrders    = "orders"
	KeyWatchlist = "watchlist"
	KeyNews      = "news"
)

// barsPrefix namespaces per-symbol bar sections, e.g. "bars:AAPL".
const barsPrefix = "bars:"

// navOrder is the order sections appear in the dashboard's navigation; the
// predicted-next section for prefetching follows this order.
var navOrder = []string{KeyAccount, KeyPositions, KeyOrders, KeyWatchlist, KeyNews}

// BarsKey returns the section key for a symbol's daily bars.
func BarsKey(symbol string) string {
	return barsPrefix + strings.ToUpper(symbol)
}

// ParseBarsKey extracts the symbol from a bars section key, or "".
func ParseBarsKey(key string) string {
	if !strings.HasPrefix(key, barsPrefix) {
		return ""
	}
	return strings.TrimPrefix(key, barsPrefix)
}

// Keys returns the navigable section keys in display order.
func Keys() []string {
	out := make([]string, len(navOrder))
	copy(out, navOrder)
	return out
}

// Known reports whether key names a fetchable section.
func Known(key string) bool {
	if ParseBarsKey(key) != "" {
		return true
	}
	for _, k := range navOrder {
		if k == key {
			return true
		}
	}
	return false
}

// Next returns the section a user is most likely to open after key, or ""
// when there is no useful prediction.
func Next(key string) string {
	for i, k := range navOrder {
		if k == key && i+1 < len(navOrder) {
			return navOrder[i+1]
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Section payloads
// ---------------------------------------------------------------------------

// AccountSummary is the account section payload.
type AccountSummary struct {
	Status      string  `json:"status"`
	Currency    string  `json:"currency"`
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buyingPower"`
}

// PositionRow is one open position.
type PositionRow struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgEntry     float64 `json:"avgEntry"`
	MarketValue  float64 `json:"marketValue"`
	UnrealizedPL float64 `json:"unrealizedPl"`
	CurrentPrice float64 `json:"currentPrice"`
}

// OrderRow is one order record.
type OrderRow struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Type        string    `json:"type"`
	Qty         float64   `json:"qty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// WatchlistPayload is the watchlist section payload.
type WatchlistPayload struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// NewsItem is one news article.
type NewsItem struct {
	Time     time.Time `json:"time"`
	Headline string    `json:"headline"`
	Summary  string    `json:"summary,omitempty"`
	Symbols  []string  `json:"symbols,omitempty"`
}

// BarRow is one daily OHLCV bar.
type BarRow struct {
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"tradeCount"`
	VWAP       float64   `json:"vwap"`
}

// ErrUnknownSection rejects fetches for keys outside the catalog.
type ErrUnknownSection struct {
	Key string
}

func (e *ErrUnknownSection) Error() string {
	return fmt.Sprintf("section: unknown key %q", e.Key)
}
