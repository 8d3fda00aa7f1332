package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const (
	ConfigPath = "/api/config"
	QuotesPath = "/api/quotes"
	WSPath     = "/ws"

	defaultHTTPTimeout = 30 * time.Second
	maxErrorBody       = 4096
)

// HTTPSource fetches the chart configuration and bulk history over REST.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Config returns the ticker list and tick interval served by the gateway.
func (s *HTTPSource) Config(ctx context.Context) (models.ChartConfig, error) {
	var cfg models.ChartConfig
	if err := s.getJSON(ctx, s.baseURL+ConfigPath, &cfg); err != nil {
		return models.ChartConfig{}, fmt.Errorf("fetch config: %w", err)
	}
	if len(cfg.Tickers) == 0 {
		return models.ChartConfig{}, fmt.Errorf("fetch config: server returned no tickers")
	}
	if cfg.TickIntervalSec <= 0 {
		return models.ChartConfig{}, fmt.Errorf("fetch config: invalid tick interval %v", cfg.TickIntervalSec)
	}
	return cfg, nil
}

// History returns every point after the token in req.
func (s *HTTPSource) History(ctx context.Context, req models.QuotesRequest) (models.QuoteBatch, error) {
	var b models.QuoteBatch
	if err := s.getJSON(ctx, s.baseURL+QuotesPath+"?"+EncodeQuery(req).Encode(), &b); err != nil {
		return models.QuoteBatch{}, fmt.Errorf("fetch history: %w", err)
	}
	return b, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, u string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// EncodeQuery renders a resumption token as query parameters.
func EncodeQuery(req models.QuotesRequest) url.Values {
	q := url.Values{}
	if req.FromIndex != nil {
		q.Set("from_index", strconv.FormatInt(*req.FromIndex, 10))
	}
	if req.FromTimestampSec != nil {
		q.Set("from_timestamp_sec", strconv.FormatInt(*req.FromTimestampSec, 10))
	}
	return q
}

// WebSocketURL maps an http(s) base URL to the gateway's ws(s) endpoint.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += WSPath
	return u.String(), nil
}
