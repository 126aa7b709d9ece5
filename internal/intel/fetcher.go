package intel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hostsentrystack/hostsentry-agent/internal/metrics"
	"github.com/hostsentrystack/hostsentry-agent/internal/models"
)

// Source describes one upstream threat feed: its frozen HTTP contract plus
// the normalizer that maps its JSON into the common item shape.
type Source struct {
	Name     string
	Endpoint string
	Method   string
	Headers  map[string]string
	// Body returns the request payload for POST-style feeds; nil for GET.
	Body func() ([]byte, error)
	// Normalize maps the raw response body into at most maxItems items.
	Normalize func(body []byte, maxItems int) ([]models.ThreatItem, error)
}

// Fetcher retrieves one source's current items.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) models.SourceResult
}

// Client executes Source descriptors over HTTP. Every failure mode (network,
// timeout, HTTP status, decode) is contained in the returned SourceResult;
// nothing escapes a fetcher's boundary.
type Client struct {
	httpClient *http.Client
	maxItems   int
	logger     *slog.Logger
}

// NewClient constructs a feed client with a shared per-request timeout.
func NewClient(timeout time.Duration, maxItems int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxItems:   maxItems,
		logger:     logger,
	}
}

// Bind pairs the client with a source descriptor.
func (c *Client) Bind(src Source) Fetcher {
	return &sourceFetcher{client: c, src: src}
}

type sourceFetcher struct {
	client *Client
	src    Source
}

func (f *sourceFetcher) Name() string { return f.src.Name }

func (f *sourceFetcher) Fetch(ctx context.Context) models.SourceResult {
	start := time.Now()
	items, err := f.client.execute(ctx, f.src)
	duration := time.Since(start)

	result := models.SourceResult{
		Source:    f.src.Name,
		Timestamp: time.Now().UTC(),
		Items:     items,
		Count:     len(items),
	}
	if err != nil {
		metrics.ObserveFeedFetch(f.src.Name, duration, metrics.OutcomeError)
		f.client.logger.Warn("feed fetch failed",
			slog.String("source", f.src.Name),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		result.Error = err.Error()
		result.Items = []models.ThreatItem{}
		result.Count = 0
		return result
	}

	metrics.ObserveFeedFetch(f.src.Name, duration, metrics.OutcomeSuccess)
	f.client.logger.Debug("feed fetch complete",
		slog.String("source", f.src.Name),
		slog.Int("items", len(items)),
		slog.Duration("duration", duration))
	return result
}

func (c *Client) execute(ctx context.Context, src Source) ([]models.ThreatItem, error) {
	method := src.Method
	if method == "" {
		method = http.MethodGet
	}

	var payload io.Reader
	if src.Body != nil {
		body, err := src.Body()
		if err != nil {
			return nil, fmt.Errorf("build request body: %w", err)
		}
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, src.Endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range src.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", src.Name, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	items, err := src.Normalize(body, c.maxItems)
	if err != nil {
		return nil, fmt.Errorf("normalize response: %w", err)
	}
	if items == nil {
		items = []models.ThreatItem{}
	}
	return items, nil
}

// maxResponseBytes bounds feed responses; upstream volume is not ours to buffer.
const maxResponseBytes = 4 << 20
