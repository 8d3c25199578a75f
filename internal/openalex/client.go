package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperdesk/research-assistant-service/internal/domain"
	"github.com/paperdesk/research-assistant-service/internal/observability"
)

const sourceName = "openalex"

// maxErrorBodyBytes bounds how much of an upstream error body is captured.
const maxErrorBodyBytes = 512

// Config configures the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is sent as the mailto parameter for OpenAlex's polite pool.
	Email string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per request.
	MaxAttempts int

	// RetryDelay is the initial retry backoff; it doubles each attempt.
	RetryDelay time.Duration

	// RateLimit is the maximum requests per second to OpenAlex.
	RateLimit float64

	// BurstSize is the rate limiter burst allowance.
	BurstSize int

	// ResponseCache enables an in-process cache of raw search responses,
	// keyed by the full request URL.
	ResponseCache bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openalex.org"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 10
	}
	if c.BurstSize == 0 {
		c.BurstSize = 10
	}
}

// Result is the outcome of a works search.
type Result struct {
	Papers          []domain.Paper
	TotalResults    int
	UpstreamLatency time.Duration
}

// Client fetches scholarly works from the OpenAlex API.
// It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *HTTPClient
	logger     zerolog.Logger

	mu            sync.RWMutex
	responseCache map[string]*SearchResponse
}

// New creates an OpenAlex client with the given configuration. Metrics may
// be nil in tests; when set, the underlying HTTP client records per-attempt
// request totals, durations, failures, and rate-limited responses.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := NewHTTPClient(HTTPClientConfig{
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		BurstSize:   cfg.BurstSize,
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}, metrics)

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a client using the provided HTTP client.
// Intended for tests that need control over transport behavior.
func NewWithHTTPClient(cfg Config, httpClient *HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	c := &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "openalex_client").Logger(),
	}
	if cfg.ResponseCache {
		c.responseCache = make(map[string]*SearchResponse)
	}
	return c
}

// Search executes a works search with the given upstream parameters and
// pagination, and converts the results to domain papers.
func (c *Client) Search(ctx context.Context, params domain.TranslatedRequest, page, perPage int) (*Result, error) {
	query := BuildQuery(params, page, perPage, c.config.Email)
	requestURL := c.config.BaseURL + "/works?" + encodeSorted(query)

	if cached := c.cachedResponse(requestURL); cached != nil {
		c.logger.Debug().Str("url", requestURL).Msg("serving response from in-process cache")
		return resultFrom(cached, 0), nil
	}

	start := time.Now()
	resp, err := c.get(ctx, requestURL)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	c.storeResponse(requestURL, resp)

	c.logger.Debug().
		Int("total_results", resp.Meta.Count).
		Int("returned", len(resp.Results)).
		Dur("latency", latency).
		Msg("works search completed")

	return resultFrom(resp, latency), nil
}

func resultFrom(resp *SearchResponse, latency time.Duration) *Result {
	papers := make([]domain.Paper, 0, len(resp.Results))
	for i := range resp.Results {
		papers = append(papers, workToPaper(&resp.Results[i]))
	}
	return &Result{
		Papers:          papers,
		TotalResults:    resp.Meta.Count,
		UpstreamLatency: latency,
	}
}

func (c *Client) get(ctx context.Context, requestURL string) (*SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var rateLimitErr *domain.RateLimitError
		if errors.As(err, &rateLimitErr) {
			return nil, domain.NewExternalAPIError(sourceName, http.StatusTooManyRequests,
				"rate limit retries exhausted", rateLimitErr)
		}
		return nil, domain.NewExternalAPIError(sourceName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode,
			strings.TrimSpace(string(body)), nil)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode,
			"malformed response body", err)
	}

	return &searchResp, nil
}

func (c *Client) cachedResponse(key string) *SearchResponse {
	if c.responseCache == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.responseCache[key]
}

func (c *Client) storeResponse(key string, resp *SearchResponse) {
	if c.responseCache == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseCache[key] = resp
}

// encodeSorted encodes query values with keys in sorted order so the same
// logical request always produces the same URL.
func encodeSorted(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Parsing limits for converting a work to a paper.
const (
	maxAuthorsPerPaper  = 10
	maxConceptsPerPaper = 5
)

// workToPaper converts an OpenAlex work to a domain paper.
func workToPaper(w *Work) domain.Paper {
	paper := domain.Paper{
		ID:              w.ID,
		Title:           w.Title,
		PublicationDate: w.PublicationDate,
		PublicationYear: w.PublicationYear,
		CitedByCount:    w.CitedByCount,
		DOI:             w.DOI,
		Abstract:        reconstructAbstract(w.AbstractInvertedIndex),
	}
	if paper.Title == "" {
		paper.Title = w.DisplayName
	}
	if paper.Title == "" {
		paper.Title = "Untitled"
	}

	for i, authorship := range w.Authorships {
		if i >= maxAuthorsPerPaper {
			break
		}
		author := domain.Author{
			ID:   authorship.Author.ID,
			Name: authorship.Author.DisplayName,
		}
		if author.Name == "" {
			author.Name = "Unknown Author"
		}
		if len(authorship.Institutions) > 0 {
			author.Institution = authorship.Institutions[0].DisplayName
		}
		paper.Authors = append(paper.Authors, author)
	}

	for i, concept := range w.Concepts {
		if i >= maxConceptsPerPaper {
			break
		}
		paper.Concepts = append(paper.Concepts, domain.Concept{
			ID:    concept.ID,
			Name:  concept.DisplayName,
			Score: concept.Score,
		})
	}

	if w.PrimaryLocation != nil && w.PrimaryLocation.Source != nil {
		paper.Venue = w.PrimaryLocation.Source.DisplayName
	}
	if w.OpenAccess != nil {
		paper.OpenAccess = w.OpenAccess.IsOA
		paper.PDFURL = w.OpenAccess.OAURL
	}

	return paper
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted index,
// which maps each word to the positions it occupies.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	maxPos := -1
	for _, positions := range index {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	if maxPos < 0 {
		return ""
	}

	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos <= maxPos {
				words[pos] = word
			}
		}
	}

	var b strings.Builder
	for _, word := range words {
		if word == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	return b.String()
}
