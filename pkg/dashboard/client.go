// Package dashboard provides a Go SDK for the dashboard-server API.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Section is one served section.
type Section struct {
	Key       string          `json:"key"`
	Source    string          `json:"source"` // cache, prefetch or network
	ElapsedMs int64           `json:"elapsedMs"`
	Data      json.RawMessage `json:"data"`
}

// Row is one materialized list item of a windowed section.
type Row struct {
	Index  int    `json:"index"`
	Top    int    `json:"top"`
	Markup string `json:"markup"`
}

// Window is the materialized slice of a list-shaped section.
type Window struct {
	Key         string `json:"key"`
	Offset      int    `json:"offset"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Total       int    `json:"total"`
	TotalHeight int    `json:"totalHeight"`
	Rows        []Row  `json:"rows"`
}

// HistoryRecord is one recorded section snapshot.
type HistoryRecord struct {
	Section   string          `json:"section"`
	TakenAt   int64           `json:"takenAt"` // unix millis
	Source    string          `json:"source"`
	ElapsedMs int64           `json:"elapsedMs"`
	Payload   json.RawMessage `json:"payload"`
}

// History is the snapshot history for one date.
type History struct {
	Date    string          `json:"date"`
	Records []HistoryRecord `json:"records"`
}

// TimerStats aggregates one named server timer.
type TimerStats struct {
	Count uint64        `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// FrameStats summarizes the server's render-frame window.
type FrameStats struct {
	Samples    int           `json:"samples"`
	Avg        time.Duration `json:"avg"`
	Max        time.Duration `json:"max"`
	SlowFrames uint64        `json:"slowFrames"`
}

// CacheStats mirrors the server's section cache counters.
type CacheStats struct {
	Size        int      `json:"size"`
	Capacity    int      `json:"capacity"`
	Hits        uint64   `json:"hits"`
	Misses      uint64   `json:"misses"`
	Evictions   uint64   `json:"evictions"`
	Expirations uint64   `json:"expirations"`
	Keys        []string `json:"keys"`
}

// Metrics is the server performance snapshot.
type Metrics struct {
	Perf struct {
		Timers map[string]TimerStats `json:"timers"`
		Frames FrameStats            `json:"frames"`
	} `json:"perf"`
	Cache CacheStats `json:"cache"`
}

// Client talks to a dashboard-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard API: %d %s", e.Status, e.Message)
}

// IsBusy reports whether err is the server dropping a request because a
// section load was already in progress.
func IsBusy(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusConflict
}

// GetSection loads a section, returning its payload and serve source.
func (c *Client) GetSection(ctx context.Context, key string) (*Section, error) {
	var resp Section
	if err := c.getJSON(ctx, "/api/sections/"+url.PathEscape(key), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetWindow retrieves the materialized rows of a list-shaped section for a
// scroll position. rowHeight <= 0 uses the server default.
func (c *Client) GetWindow(ctx context.Context, key string, offset, height, rowHeight int) (*Window, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("height", strconv.Itoa(height))
	if rowHeight > 0 {
		q.Set("rowHeight", strconv.Itoa(rowHeight))
	}
	path := "/api/sections/" + url.PathEscape(key) + "/window?" + q.Encode()

	var resp Window
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// InvalidateSection drops a section from the server cache.
func (c *Client) InvalidateSection(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/api/sections/"+url.PathEscape(key), nil, nil)
}

// GetState loads the persisted UI state blob for key, unmarshalling it
// into v. A never-saved key leaves v untouched and returns false.
func (c *Client) GetState(ctx context.Context, key string, v any) (bool, error) {
	var resp struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	if err := c.getJSON(ctx, "/api/state?key="+url.QueryEscape(key), &resp); err != nil {
		return false, err
	}
	if len(resp.Value) == 0 || string(resp.Value) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(resp.Value, v); err != nil {
		return false, fmt.Errorf("decoding state %s: %w", key, err)
	}
	return true, nil
}

// PutState persists v as the UI state blob for key.
func (c *Client) PutState(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", key, err)
	}
	return c.do(ctx, http.MethodPut, "/api/state?key="+url.QueryEscape(key), body, nil)
}

// GetHistoryDates lists dates with recorded snapshots.
func (c *Client) GetHistoryDates(ctx context.Context) ([]string, error) {
	var resp struct {
		Dates []string `json:"dates"`
	}
	if err := c.getJSON(ctx, "/api/history/dates", &resp); err != nil {
		return nil, err
	}
	return resp.Dates, nil
}

// GetHistory retrieves snapshot records for a date, optionally filtered to
// one section.
func (c *Client) GetHistory(ctx context.Context, date, section string) (*History, error) {
	path := "/api/history/" + url.PathEscape(date)
	if section != "" {
		path += "?section=" + url.QueryEscape(section)
	}
	var resp History
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMetrics retrieves the server's performance snapshot.
func (c *Client) GetMetrics(ctx context.Context) (*Metrics, error) {
	var resp Metrics
	if err := c.getJSON(ctx, "/api/metrics", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---- transport ----

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
