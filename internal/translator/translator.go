package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/paperdesk/research-assistant-service/internal/domain"
	"github.com/paperdesk/research-assistant-service/internal/observability"
)

// Defaults for the Gemini provider.
const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGeminiModel     = "gemini-1.5-flash-latest"
	defaultTimeout         = 10 * time.Second
	defaultMaxOutputTokens = 512
	maxTranslationAttempts = 3
	defaultPerPage         = 10
)

// Fallback reasons reported in metrics and logs.
const (
	reasonNoKeys        = "no_api_keys"
	reasonRequestFailed = "request_failed"
	reasonMalformedJSON = "malformed_json"
	reasonInvalidParams = "invalid_params"
)

// systemInstruction is the fixed prompt prefix sent with every query. It
// constrains the model to the parameter names and filter syntax the works
// API accepts.
const systemInstruction = "You translate natural language research questions into OpenAlex API calls. " +
	"Always respond with JSON containing base_url (string) and params (object). " +
	"IMPORTANT: Valid OpenAlex parameters are ONLY: search, filter, sort, per_page, page, select, cursor. " +
	"Use 'search' for keywords/topics. Use 'filter' for constraints (must be a comma-separated string). " +
	"Filter syntax examples: 'publication_year:2024', 'publication_year:2020-2023', 'cited_by_count:>50'. " +
	"Combine filters with commas: 'publication_year:2024,cited_by_count:>100'. " +
	"DO NOT use publication_year as a separate parameter - it must be inside the filter string. " +
	"Sort format: 'cited_by_count:desc' or 'publication_date:desc'. " +
	"Always include a 'search' parameter for the main topic."

// Result is the outcome of a translation. Params is always usable; UsedAI
// reports whether the model produced it or the heuristic builder did.
type Result struct {
	Params domain.TranslatedRequest
	UsedAI bool
}

// Translator converts a free-text query into upstream search parameters.
// Implementations never fail; they degrade to heuristic parameters instead.
type Translator interface {
	Translate(ctx context.Context, query string) Result
}

// Config holds the parameters needed to create a Gemini translator.
type Config struct {
	// BaseURL is the generative-language API base URL (empty means default).
	BaseURL string

	// Model is the model identifier (e.g., "gemini-1.5-flash-latest").
	Model string

	// APIKeys are the keys rotated across requests and retries.
	APIKeys []string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

// GeminiTranslator implements Translator using the Gemini generateContent API.
type GeminiTranslator struct {
	httpClient *http.Client
	baseURL    string
	model      string
	rotator    *KeyRotator
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewGeminiTranslator creates a translator backed by the Gemini API.
// Metrics may be nil in tests.
func NewGeminiTranslator(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *GeminiTranslator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &GeminiTranslator{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		rotator:    NewKeyRotator(cfg.APIKeys),
		logger:     logger.With().Str("component", "query_translator").Logger(),
		metrics:    metrics,
	}
}

// ReplaceAPIKeys swaps in a new key set, typically after a configuration
// reload. An unchanged set keeps the rotation cursor in place; a changed one
// restarts rotation from the first key.
func (t *GeminiTranslator) ReplaceAPIKeys(keys []string) {
	t.rotator.Replace(keys)
}

// Translate converts a free-text query into upstream parameters. It never
// fails: every error path degrades to the heuristic builder.
func (t *GeminiTranslator) Translate(ctx context.Context, query string) Result {
	if t.rotator.Len() == 0 {
		return t.fallback(query, reasonNoKeys, nil)
	}

	start := time.Now()
	attempts := maxTranslationAttempts
	if n := t.rotator.Len(); n < attempts {
		attempts = n
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		key, ok := t.rotator.Next()
		if !ok {
			break
		}

		raw, err := t.generateContent(ctx, key, query)
		if err != nil {
			lastErr = err
			t.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("translation request failed, rotating key")
			continue
		}

		payload := extractJSONPayload(raw)
		var translation translationPayload
		if err := json.Unmarshal([]byte(payload), &translation); err != nil {
			// A syntactically broken response will not improve with a
			// different key.
			return t.fallback(query, reasonMalformedJSON, err)
		}

		params, err := normalizeTranslation(translation, query)
		if err != nil {
			return t.fallback(query, reasonInvalidParams, err)
		}

		if t.metrics != nil {
			t.metrics.RecordTranslation(time.Since(start).Seconds())
		}
		return Result{Params: params, UsedAI: true}
	}

	return t.fallback(query, reasonRequestFailed, lastErr)
}

func (t *GeminiTranslator) fallback(query, reason string, cause error) Result {
	evt := t.logger.Warn().Str("reason", reason)
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("using heuristic translation")

	if t.metrics != nil {
		t.metrics.RecordTranslationFallback(reason)
	}
	return Result{Params: HeuristicRequest(query), UsedAI: false}
}

// Gemini generateContent request and response shapes.
type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generateContent performs a single Gemini API call and returns the raw
// text of the first candidate.
func (t *GeminiTranslator) generateContent(ctx context.Context, apiKey, query string) (string, error) {
	prompt := systemInstruction +
		"\n\nTranslate the following request and return a JSON object with keys " +
		"base_url (string) and params (object). Ensure params keys align with " +
		"OpenAlex filtering syntax.\n\n" + query

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.0,
			TopP:            0.9,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s:generateContent?key=%s", t.baseURL, t.model, apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", fmt.Errorf("gemini: API error status %d: %s", resp.StatusCode, msg)
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("gemini: failed to unmarshal response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates in response")
	}

	return geminiResp.Candidates[0].Content.Parts[0].Text, nil
}

// translationPayload is the JSON object the model is asked to produce.
type translationPayload struct {
	BaseURL string                 `json:"base_url"`
	Params  map[string]interface{} `json:"params"`
}

// extractJSONPayload strips Markdown code fences and an optional language
// hint from the model output, leaving bare JSON.
func extractJSONPayload(raw string) string {
	stripped := strings.TrimSpace(raw)
	if !strings.HasPrefix(stripped, "```") {
		return stripped
	}

	lines := strings.Split(stripped, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.ToLower(lines[0]), "json") {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// normalizeTranslation sanitizes a parsed translation into upstream
// parameters: non-whitelisted keys are dropped, a nested filter object is
// flattened into a comma-joined string with unsupported clauses removed,
// and per_page is clamped to the API's accepted range. The search parameter
// always defaults to the raw query.
func normalizeTranslation(translation translationPayload, query string) (domain.TranslatedRequest, error) {
	if translation.Params == nil {
		return nil, fmt.Errorf("translation missing params object")
	}

	params := make(domain.TranslatedRequest, len(translation.Params))
	for key, value := range translation.Params {
		if !domain.AllowedUpstreamParams[key] {
			continue
		}

		switch key {
		case domain.ParamFilter:
			if filter := flattenFilter(value); filter != "" {
				params[key] = filter
			}
		case domain.ParamPerPage:
			params[key] = strconv.Itoa(clampPerPage(value))
		default:
			if s := valueToString(value); s != "" {
				params[key] = s
			}
		}
	}

	if params[domain.ParamSearch] == "" {
		params[domain.ParamSearch] = query
	}
	return params, nil
}

// unsupportedFilterField is a filter field the upstream rejects as a raw
// filter clause; the broader search term covers it instead.
const unsupportedFilterField = "concepts.display_name"

// flattenFilter normalizes a filter that may arrive as either a string or a
// nested object, dropping unsupported clauses. Returns the empty string when
// nothing survives.
func flattenFilter(value interface{}) string {
	switch v := value.(type) {
	case string:
		var parts []string
		for _, segment := range strings.Split(v, ",") {
			piece := strings.TrimSpace(segment)
			if piece == "" || strings.HasPrefix(piece, unsupportedFilterField+":") {
				continue
			}
			parts = append(parts, piece)
		}
		return strings.Join(parts, ",")
	case map[string]interface{}:
		var parts []string
		for field, fieldValue := range v {
			if fieldValue == nil || field == unsupportedFilterField {
				continue
			}
			if s := valueToString(fieldValue); s != "" {
				parts = append(parts, field+":"+s)
			}
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// clampPerPage coerces a per_page value into [1, 200], defaulting when the
// value cannot be interpreted as a number.
func clampPerPage(value interface{}) int {
	var perPage int
	switch v := value.(type) {
	case float64:
		perPage = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultPerPage
		}
		perPage = n
	default:
		return defaultPerPage
	}

	if perPage < 1 {
		return 1
	}
	if perPage > 200 {
		return 200
	}
	return perPage
}

// valueToString renders a scalar JSON value as a query parameter value.
func valueToString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
