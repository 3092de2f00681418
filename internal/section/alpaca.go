package section

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/juankaspain/BotV2-sub004/internal/config"
	"github.com/juankaspain/BotV2-sub004/internal/util"
)

// watchlistName is the watchlist the dashboard reads.
const watchlistName = "dashboard"

// tradingAPI is the slice of the Alpaca trading client the catalog uses.
type tradingAPI interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	GetOrders(req alpaca.GetOrdersRequest) ([]alpaca.Order, error)
	GetWatchlists() ([]alpaca.Watchlist, error)
	GetWatchlist(watchlistID string) (*alpaca.Watchlist, error)
}

// marketAPI is the slice of the Alpaca market-data client the catalog uses.
type marketAPI interface {
	GetNews(req marketdata.GetNewsRequest) ([]marketdata.News, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// Compile-time checks that the real SDK clients satisfy the API slices.
var _ tradingAPI = (*alpaca.Client)(nil)
var _ marketAPI = (*marketdata.Client)(nil)

// Catalog resolves section keys to fetches against the Alpaca APIs, with
// the shared outbound rate limit and retry discipline applied to every
// call.
type Catalog struct {
	trading tradingAPI
	market  marketAPI

	limiter     *util.RateLimiter
	maxAttempts int
	backoff     time.Duration
	log         *slog.Logger
}

// NewCatalog builds a Catalog from configuration.
func NewCatalog(ac config.Alpaca, perf config.PerfConfig, log *slog.Logger) *Catalog {
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    ac.APIKey,
		APISecret: ac.APISecret,
		BaseURL:   ac.BaseURL,
	})
	mdOpts := marketdata.ClientOpts{
		APIKey:    ac.APIKey,
		APISecret: ac.APISecret,
	}
	if ac.DataURL != "" {
		mdOpts.BaseURL = ac.DataURL
	}

	return &Catalog{
		trading:     trading,
		market:      marketdata.NewClient(mdOpts),
		limiter:     util.NewRateLimiter(perf.RateLimitPerMin),
		maxAttempts: perf.FetchMaxAttempts,
		backoff:     perf.FetchRetryBackoff(),
		log:         log.With("component", "section"),
	}
}

// Fetch retrieves the payload for key. It is the loader's FetchFunc.
func (c *Catalog) Fetch(ctx context.Context, key string) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var payload any
	err := util.Retry(ctx, c.maxAttempts, c.backoff, func() error {
		var ferr error
		payload, ferr = c.fetchOnce(ctx, key)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	return payload, nil
}

func (c *Catalog) fetchOnce(ctx context.Context, key string) (any, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if symbol := ParseBarsKey(key); symbol != "" {
		return c.fetchBars(symbol)
	}

	switch key {
	case KeyAccount:
		return c.fetchAccount()
	case KeyPositions:
		return c.fetchPositions()
	case KeyOrders:
		return c.fetchOrders()
	case KeyWatchlist:
		return c.fetchWatchlist()
	case KeyNews:
		return c.fetchNews()
	default:
		return nil, &ErrUnknownSection{Key: key}
	}
}

func (c *Catalog) fetchAccount() (*AccountSummary, error) {
	acct, err := c.trading.GetAccount()
	if err != nil {
		return nil, err
	}
	return &AccountSummary{
		Status:      acct.Status,
		Currency:    acct.Currency,
		Equity:      decVal(acct.Equity),
		Cash:        decVal(acct.Cash),
		BuyingPower: decVal(acct.BuyingPower),
	}, nil
}

func (c *Catalog) fetchPositions() ([]PositionRow, error) {
	positions, err := c.trading.GetPositions()
	if err != nil {
		return nil, err
	}

	rows := make([]PositionRow, 0, len(positions))
	for i := range positions {
		p := &positions[i]
		rows = append(rows, PositionRow{
			Symbol:       p.Symbol,
			Qty:          decVal(p.Qty),
			AvgEntry:     decVal(p.AvgEntryPrice),
			MarketValue:  decPtr(p.MarketValue),
			UnrealizedPL: decPtr(p.UnrealizedPL),
			CurrentPrice: decPtr(p.CurrentPrice),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	return rows, nil
}

func (c *Catalog) fetchOrders() ([]OrderRow, error) {
	orders, err := c.trading.GetOrders(alpaca.GetOrdersRequest{
		Status: "all",
		Limit:  100,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]OrderRow, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		rows = append(rows, OrderRow{
			ID:          o.ID,
			Symbol:      o.Symbol,
			Side:        string(o.Side),
			Type:        string(o.Type),
			Qty:         decPtr(o.Qty),
			Status:      string(o.Status),
			SubmittedAt: o.SubmittedAt,
		})
	}
	return rows, nil
}

func (c *Catalog) fetchWatchlist() (*WatchlistPayload, error) {
	lists, err := c.trading.GetWatchlists()
	if err != nil {
		return nil, err
	}

	payload := &WatchlistPayload{Name: watchlistName, Symbols: []string{}}
	for _, w := range lists {
		if w.Name != watchlistName {
			continue
		}
		full, err := c.trading.GetWatchlist(w.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range full.Assets {
			payload.Symbols = append(payload.Symbols, a.Symbol)
		}
		sort.Strings(payload.Symbols)
		break
	}
	return payload, nil
}

func (c *Catalog) fetchNews() ([]NewsItem, error) {
	articles, err := c.market.GetNews(marketdata.GetNewsRequest{
		Start:      time.Now().Add(-24 * time.Hour),
		TotalLimit: 50,
		Sort:       marketdata.SortDesc,
	})
	if err != nil {
		return nil, err
	}

	items := make([]NewsItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, NewsItem{
			Time:     a.CreatedAt,
			Headline: a.Headline,
			Summary:  a.Summary,
			Symbols:  a.Symbols,
		})
	}
	return items, nil
}

func (c *Catalog) fetchBars(symbol string) ([]BarRow, error) {
	end := time.Now()
	bars, err := c.market.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     end.AddDate(0, -3, 0),
		End:       end,
	})
	if err != nil {
		return nil, err
	}

	rows := make([]BarRow, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, BarRow{
			Time:       b.Timestamp,
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     int64(b.Volume),
			TradeCount: int64(b.TradeCount),
			VWAP:       b.VWAP,
		})
	}
	return rows, nil
}

func decVal(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func decPtr(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
