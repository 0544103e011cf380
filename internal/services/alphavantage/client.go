package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"geopark-pipeline/internal/common"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// FeedKind names one of the three provider feeds the pipeline reads.
type FeedKind string

const (
	FeedSecurity  FeedKind = "security"
	FeedBenchmark FeedKind = "benchmark"
	FeedOverview  FeedKind = "overview"
)

// Top-level keys of the provider responses.
const (
	KeyDailySeries = "Time Series (Daily)"
	KeyMetaData    = "Meta Data"
	KeyData        = "data"
	KeyMarketCap   = "MarketCapitalization"

	keyErrorMessage = "Error Message"
	keyNote         = "Note"
	keyInformation  = "Information"
)

// Payload is the decoded top-level object of one feed response. Values are left raw; the
// reconciler decides how to read them.
type Payload struct {
	Kind   FeedKind
	Fields map[string]json.RawMessage
}

// Has reports whether the payload carries the top-level key.
func (p *Payload) Has(key string) bool {
	_, ok := p.Fields[key]
	return ok
}

// Client fetches Alpha Vantage feeds for one symbol.
type Client struct {
	baseURL           string
	apiKey            string
	symbol            string
	benchmarkFunction string
	timeout           time.Duration
	httpClient        *http.Client
	logger            logrus.FieldLogger

	client *resty.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBenchmarkFunction selects the commodity function used for the benchmark feed (WTI, BRENT).
func WithBenchmarkFunction(fn string) ClientOption {
	return func(c *Client) { c.benchmarkFunction = fn }
}

func NewClient(baseURL, apiKey, symbol string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		apiKey:            apiKey,
		symbol:            symbol,
		benchmarkFunction: "WTI",
		timeout:           30 * time.Second,
		logger:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.client = resty.NewWithClient(c.httpClient)
	} else {
		c.client = resty.New()
	}
	c.client.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetLogger(c.logger)

	return c
}

// Symbol returns the ticker this client fetches.
func (c *Client) Symbol() string { return c.symbol }

func (c *Client) params(kind FeedKind) (map[string]string, error) {
	switch kind {
	case FeedSecurity:
		return map[string]string{"function": "TIME_SERIES_DAILY", "symbol": c.symbol, "apikey": c.apiKey}, nil
	case FeedBenchmark:
		return map[string]string{"function": c.benchmarkFunction, "interval": "daily", "apikey": c.apiKey}, nil
	case FeedOverview:
		return map[string]string{"function": "OVERVIEW", "symbol": c.symbol, "apikey": c.apiKey}, nil
	default:
		return nil, fmt.Errorf("unknown feed kind %q", kind)
	}
}

// Fetch performs one request for the feed. It never retries; every failure comes back as a
// *common.Error of kind transport_error, rate_limited, api_error or malformed_response.
func (c *Client) Fetch(ctx context.Context, kind FeedKind) (*Payload, error) {
	params, err := c.params(kind)
	if err != nil {
		return nil, common.New(common.ErrAPI, "invalid feed", err)
	}
	log := c.logger.WithField("feed", kind)

	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/query")
	if err != nil {
		return nil, common.New(common.ErrTransport, fmt.Sprintf("%s request failed", kind), err)
	}
	log.WithFields(logrus.Fields{"status": resp.StatusCode(), "elapsed": time.Since(start)}).Debug("feed response")

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return nil, common.Newf(common.ErrRateLimited, "%s: provider returned %s", kind, resp.Status())
	case !resp.IsSuccess():
		return nil, common.Newf(common.ErrTransport, "%s: provider returned %s", kind, resp.Status())
	}

	return DecodePayload(kind, resp.Body())
}

// DecodePayload parses a response body and classifies provider errors embedded in a 2xx body.
func DecodePayload(kind FeedKind, body []byte) (*Payload, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, common.New(common.ErrMalformedResponse, fmt.Sprintf("%s: body is not a JSON object", kind), err)
	}

	if msg, ok := stringField(fields, keyErrorMessage); ok {
		return nil, common.Newf(common.ErrAPI, "%s: %s", kind, msg)
	}
	if msg, ok := stringField(fields, keyNote); ok {
		return nil, common.Newf(common.ErrRateLimited, "%s: %s", kind, msg)
	}
	if msg, ok := stringField(fields, keyInformation); ok {
		if isRateLimitNotice(msg) {
			return nil, common.Newf(common.ErrRateLimited, "%s: %s", kind, msg)
		}
		// an Information notice on its own replaces the data (premium endpoint, demo key)
		if len(fields) == 1 {
			return nil, common.Newf(common.ErrAPI, "%s: %s", kind, msg)
		}
	}

	if !hasDataKey(kind, fields) {
		return nil, common.Newf(common.ErrMalformedResponse, "%s: response has no %q field", kind, dataKey(kind))
	}
	return &Payload{Kind: kind, Fields: fields}, nil
}

func dataKey(kind FeedKind) string {
	switch kind {
	case FeedSecurity:
		return KeyDailySeries
	case FeedBenchmark:
		return KeyData
	default:
		return ""
	}
}

func hasDataKey(kind FeedKind, fields map[string]json.RawMessage) bool {
	key := dataKey(kind)
	if key == "" {
		return true
	}
	_, ok := fields[key]
	return ok
}

func isRateLimitNotice(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "rate limit") || strings.Contains(m, "call frequency") || strings.Contains(m, "requests per")
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true
	}
	return s, true
}
