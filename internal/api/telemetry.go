// Package api wraps the vendor telemetry export endpoint. It returns
// raw rows only; normalization and aggregation happen downstream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Mouaidnasab/dair-home/internal/config"
	"github.com/Mouaidnasab/dair-home/internal/models"
)

// ErrSourceUnavailable covers network failures, timeouts, and non-2xx
// responses from the vendor. Callers treat it as retryable and keep the
// last-known-good view displayed.
var ErrSourceUnavailable = errors.New("telemetry source unavailable")

// Vendor export endpoint uses local wall-clock timestamps in this form.
const vendorTimeLayout = "2006-01-02 15:04:05"

type exportResponse struct {
	Rows []models.RawRow `json:"rows"`
}

// Client fetches raw telemetry rows from the vendor export endpoint.
// Calls are rate limited so the 30-second poll plus on-demand history
// views cannot trip the vendor's request quota.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	log           *logrus.Logger
	latestTimeout time.Duration
	seriesTimeout time.Duration
	rowLimit      int
}

// NewClient builds a Client from the vendor configuration. A zero or
// negative rate disables client-side limiting.
func NewClient(cfg config.VendorConfig, log *logrus.Logger) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		httpClient:    &http.Client{},
		limiter:       rate.NewLimiter(limit, cfg.RateLimitBurst),
		log:           log,
		latestTimeout: time.Duration(cfg.LatestTimeoutSecs) * time.Second,
		seriesTimeout: time.Duration(cfg.SeriesTimeoutSecs) * time.Second,
		rowLimit:      cfg.SeriesRowLimit,
	}
}

// FetchRecords returns all raw rows for one inverter in [start, end].
func (c *Client) FetchRecords(ctx context.Context, plantID, label string, start, end time.Time) ([]models.RawRow, error) {
	params := url.Values{}
	params.Set("plantId", plantID)
	if label != "" {
		params.Set("label", label)
	}
	params.Set("start", start.Format(vendorTimeLayout))
	params.Set("end", end.Format(vendorTimeLayout))
	params.Set("limit", strconv.Itoa(c.rowLimit))
	params.Set("fmt", "json")

	return c.export(ctx, params, c.seriesTimeout)
}

// FetchLatest returns the most recent raw row for one inverter, or
// ErrSourceUnavailable when the vendor has nothing for today.
func (c *Client) FetchLatest(ctx context.Context, plantID, label string) (models.RawRow, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())

	params := url.Values{}
	params.Set("plantId", plantID)
	params.Set("label", label)
	params.Set("start", start.Format(vendorTimeLayout))
	params.Set("end", end.Format(vendorTimeLayout))
	params.Set("limit", "1")
	params.Set("fmt", "json")

	rows, err := c.export(ctx, params, c.latestTimeout)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows for plant %s", ErrSourceUnavailable, label)
	}
	return rows[0], nil
}

func (c *Client) export(ctx context.Context, params url.Values, timeout time.Duration) ([]models.RawRow, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/export?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: vendor returned %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var payload exportResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSourceUnavailable, err)
	}

	c.log.WithFields(logrus.Fields{
		"plant_id": params.Get("plantId"),
		"label":    params.Get("label"),
		"rows":     len(payload.Rows),
		"duration": time.Since(started).String(),
	}).Debug("vendor export fetched")

	return payload.Rows, nil
}
