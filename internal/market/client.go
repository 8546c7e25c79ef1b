// Package market provides a client for the warframe.market public API.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/wfmarket-companion/internal/cache"
	"github.com/ramonehamilton/wfmarket-companion/internal/metrics"
)

const (
	// DefaultBaseURL is the v1 API root.
	DefaultBaseURL = "https://api.warframe.market/v1"

	// StatisticsType is the closed-statistics window requested for 24h aggregation.
	StatisticsType = "48hours"

	defaultUserAgent = "wfmarket-companion/1.0"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	Platform  string
	Language  string
	UserAgent string

	// RateDelay is the minimum spacing between outbound requests.
	RateDelay time.Duration
	Timeout   time.Duration

	// MaxRetries bounds retries on HTTP 429. Other failures are not retried.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Cache is consulted before every request. Nil disables caching.
	Cache *cache.Cache

	// Metrics, when set, counts requests, 429s and cache lookups.
	Metrics *metrics.ClientMetrics

	Logger *slog.Logger
}

// DefaultOptions returns options matching the public API's etiquette.
func DefaultOptions() Options {
	return Options{
		BaseURL:        DefaultBaseURL,
		Platform:       "pc",
		Language:       "en",
		UserAgent:      defaultUserAgent,
		RateDelay:      350 * time.Millisecond,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     16 * time.Second,
	}
}

// Client is a rate-limited, caching warframe.market client.
// It is intended for sequential use by a single report run.
type Client struct {
	http        *resty.Client
	rateLimiter *rate.Limiter
	cache       *cache.Cache
	metrics     *metrics.ClientMetrics
	logger      *slog.Logger

	baseURL        string
	platform       string
	language       string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	// sleep waits between 429 retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. Zero-valued options take their defaults.
func NewClient(opts Options) *Client {
	defaults := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.Platform == "" {
		opts.Platform = defaults.Platform
	}
	if opts.Language == "" {
		opts.Language = defaults.Language
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaults.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.RateDelay > 0 {
		limit = rate.Every(opts.RateDelay)
	}

	httpClient := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Platform", opts.Platform).
		SetHeader("Language", opts.Language)

	return &Client{
		http:           httpClient,
		rateLimiter:    rate.NewLimiter(limit, 1),
		cache:          opts.Cache,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		platform:       opts.Platform,
		language:       opts.Language,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		sleep:          sleepContext,
	}
}

// Platform returns the platform header value.
func (c *Client) Platform() string { return c.platform }

// Language returns the language header value.
func (c *Client) Language() string { return c.language }

// ListItems retrieves the full item listing.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	key := c.key(cache.CategoryItems, "")

	var items []Item
	if c.cacheGet(key, &items) {
		return items, nil
	}

	var resp itemsResponse
	if err := c.doRequest(ctx, "/items", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	items, err := decodeItemList(resp.Payload.Items, c.language)
	if err != nil {
		return nil, &APIError{Kind: KindDecode, URL: c.baseURL + "/items", Message: "invalid items payload", Err: err}
	}

	c.cachePut(key, items)
	return items, nil
}

// ItemSet retrieves the item detail, including every set component.
func (c *Client) ItemSet(ctx context.Context, urlName string) (*ItemDetail, error) {
	key := c.key(cache.CategoryItem, urlName)

	var raw json.RawMessage
	if !c.cacheGet(key, &raw) {
		var resp itemDetailResponse
		if err := c.doRequest(ctx, "/items/"+url.PathEscape(urlName), nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to get item %s: %w", urlName, err)
		}
		raw = resp.Payload.Item.ItemsInSet
		if len(raw) == 0 {
			raw = json.RawMessage("[]")
		}
		c.cachePut(key, raw)
	}

	var detail ItemDetail
	if err := json.Unmarshal(raw, &detail.Components); err != nil {
		return nil, &APIError{Kind: KindDecode, URL: c.baseURL + "/items/" + urlName, Message: "invalid items_in_set", Err: err}
	}

	return &detail, nil
}

// Statistics retrieves the closed statistics entries of the 48-hour window.
func (c *Client) Statistics(ctx context.Context, urlName string) ([]StatisticsEntry, error) {
	key := c.key(cache.CategoryStatistics, urlName)

	var entries []StatisticsEntry
	if c.cacheGet(key, &entries) {
		return entries, nil
	}

	var resp statisticsResponse
	path := "/items/" + url.PathEscape(urlName) + "/statistics"
	if err := c.doRequest(ctx, path, map[string]string{"type": StatisticsType}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get statistics for %s: %w", urlName, err)
	}

	entries = resp.Payload.StatisticsClosed[StatisticsType]
	if entries == nil {
		entries = []StatisticsEntry{}
	}

	c.cachePut(key, entries)
	return entries, nil
}

// SellOrders retrieves the visible sell orders of an item.
func (c *Client) SellOrders(ctx context.Context, urlName string) ([]Order, error) {
	key := c.key(cache.CategoryOrders, urlName)

	var orders []Order
	if c.cacheGet(key, &orders) {
		return orders, nil
	}

	var resp ordersResponse
	if err := c.doRequest(ctx, "/items/"+url.PathEscape(urlName)+"/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get orders for %s: %w", urlName, err)
	}

	orders = make([]Order, 0, len(resp.Payload.Orders))
	for _, o := range resp.Payload.Orders {
		if o.OrderType != "sell" || !o.IsVisible() {
			continue
		}
		orders = append(orders, o)
	}

	c.cachePut(key, orders)
	return orders, nil
}

func (c *Client) key(category cache.Category, item string) cache.Key {
	return cache.Key{Category: category, Item: item, Platform: c.platform, Language: c.language}
}

func (c *Client) cacheGet(key cache.Key, v any) bool {
	if c.cache == nil {
		return false
	}
	hit := c.cache.Get(key, v)
	c.metrics.RecordCache(hit)
	return hit
}

// cachePut never fails the request; a broken cache only costs refetches.
func (c *Client) cachePut(key cache.Key, v any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(key, v); err != nil {
		c.logger.Warn("Failed to write cache entry", "key", key.String(), "error", err)
	}
}

// doRequest performs a GET with rate limiting and bounded retry on HTTP 429.
func (c *Client) doRequest(ctx context.Context, path string, params map[string]string, result any) error {
	endpoint := c.baseURL + path
	backoff := c.initialBackoff

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindNetwork, URL: endpoint, Message: "rate limiter wait", Err: err}
		}

		c.logger.Debug("Requesting", "url", endpoint, "attempt", attempt+1)

		req := c.http.R().SetContext(ctx)
		if len(params) > 0 {
			req.SetQueryParams(params)
		}

		started := time.Now()
		resp, err := req.Get(endpoint)
		c.metrics.RecordRequest(time.Since(started), err != nil || resp.StatusCode() != http.StatusOK)
		if err != nil {
			return &APIError{Kind: KindNetwork, URL: endpoint, Message: "request failed", Err: err}
		}

		switch status := resp.StatusCode(); {
		case status == http.StatusOK:
			if err := json.Unmarshal(resp.Body(), result); err != nil {
				return &APIError{Kind: KindDecode, StatusCode: status, URL: endpoint, Message: "invalid JSON", Err: err}
			}
			return nil

		case status == http.StatusTooManyRequests:
			c.metrics.RecordRateLimited()
			if attempt >= c.maxRetries {
				return &APIError{
					Kind:       KindRateLimited,
					StatusCode: status,
					URL:        endpoint,
					Message:    fmt.Sprintf("gave up after %d retries", attempt),
				}
			}

			wait := backoff
			if retryAfter, ok := parseRetryAfter(resp.Header().Get("Retry-After")); ok {
				wait = min(retryAfter, c.maxBackoff)
			}
			c.logger.Warn("Rate limited, backing off", "url", endpoint, "wait", wait, "attempt", attempt+1)

			if err := c.sleep(ctx, wait); err != nil {
				return &APIError{Kind: KindNetwork, URL: endpoint, Message: "interrupted during backoff", Err: err}
			}
			backoff = min(backoff*2, c.maxBackoff)

		case status == http.StatusNotFound:
			return &APIError{Kind: KindNotFound, StatusCode: status, URL: endpoint, Message: "item not found"}

		default:
			return &APIError{Kind: KindStatus, StatusCode: status, URL: endpoint, Message: snippet(resp.Body())}
		}
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func snippet(body []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
