package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/paperdesk/research-assistant-service/internal/domain"
)

// geminiReply wraps a model text response in the generateContent envelope.
func geminiReply(text string) string {
	reply := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				},
			},
		},
	}
	body, _ := json.Marshal(reply)
	return string(body)
}

func newTestTranslator(t *testing.T, serverURL string, keys []string) *GeminiTranslator {
	t.Helper()
	return NewGeminiTranslator(Config{
		BaseURL: serverURL,
		Model:   "gemini-test",
		APIKeys: keys,
		Timeout: 5 * time.Second,
	}, zerolog.Nop(), nil)
}

func TestTranslate_StructuredQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{
			"base_url": "https://api.openalex.org/works",
			"params": {
				"search": "quantum computing",
				"filter": "publication_year:2024",
				"sort": "publication_date:desc"
			}
		}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "quantum computing from 2024")

	assert.True(t, result.UsedAI)
	assert.Equal(t, "quantum computing", result.Params[domain.ParamSearch])
	assert.Equal(t, "publication_year:2024", result.Params[domain.ParamFilter])
	assert.Equal(t, "publication_date:desc", result.Params[domain.ParamSort])
}

func TestTranslate_StripsMarkdownFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply("```json\n{\"params\": {\"search\": \"graphene\"}}\n```")))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "graphene")

	assert.True(t, result.UsedAI)
	assert.Equal(t, "graphene", result.Params[domain.ParamSearch])
}

func TestTranslate_DropsNonWhitelistedParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{
			"params": {
				"search": "crispr",
				"publication_year": 2023,
				"api_key": "leaked",
				"sort": "cited_by_count:desc"
			}
		}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "crispr")

	assert.True(t, result.UsedAI)
	assert.Equal(t, "cited_by_count:desc", result.Params[domain.ParamSort])
	_, hasYear := result.Params["publication_year"]
	_, hasKey := result.Params["api_key"]
	assert.False(t, hasYear)
	assert.False(t, hasKey)
}

func TestTranslate_FlattensFilterObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{
			"params": {
				"search": "protein folding",
				"filter": {"publication_year": 2022}
			}
		}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "protein folding in 2022")

	assert.True(t, result.UsedAI)
	assert.Equal(t, "publication_year:2022", result.Params[domain.ParamFilter])
}

func TestTranslate_DropsUnsupportedFilterClause(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{
			"params": {
				"search": "dark matter",
				"filter": "concepts.display_name:Physics,publication_year:2021"
			}
		}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "dark matter")

	assert.Equal(t, "publication_year:2021", result.Params[domain.ParamFilter])
}

func TestTranslate_RemovesEmptyFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{
			"params": {
				"search": "dark matter",
				"filter": "concepts.display_name:Physics"
			}
		}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "dark matter")

	_, hasFilter := result.Params[domain.ParamFilter]
	assert.False(t, hasFilter)
}

func TestTranslate_ClampsPerPage(t *testing.T) {
	tests := []struct {
		name    string
		perPage string
		want    string
	}{
		{"too large", "500", "200"},
		{"too small", "0", "1"},
		{"in range", "50", "50"},
		{"unparseable", `"lots"`, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(geminiReply(fmt.Sprintf(
					`{"params": {"search": "x", "per_page": %s}}`, tt.perPage))))
			}))
			defer server.Close()

			tr := newTestTranslator(t, server.URL, []string{"key-1"})
			result := tr.Translate(context.Background(), "x")

			assert.Equal(t, tt.want, result.Params[domain.ParamPerPage])
		})
	}
}

func TestTranslate_DefaultsSearchToQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(geminiReply(`{"params": {"sort": "cited_by_count:desc"}}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"key-1"})
	result := tr.Translate(context.Background(), "superconductors")

	assert.Equal(t, "superconductors", result.Params[domain.ParamSearch])
}

func TestTranslate_RotatesKeysOnFailure(t *testing.T) {
	var keys []string
	var mu atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := mu.Add(1)
		keys = append(keys, r.URL.Query().Get("key"))
		if call < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(geminiReply(`{"params": {"search": "ok"}}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"k1", "k2", "k3"})
	result := tr.Translate(context.Background(), "anything")

	assert.True(t, result.UsedAI)
	assert.Equal(t, []string{"k1", "k2", "k3"}, keys)
}

func TestTranslate_UsesReplacedKeys(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.URL.Query().Get("key"))
		w.Write([]byte(geminiReply(`{"params": {"search": "ok"}}`)))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"stale"})
	tr.Translate(context.Background(), "anything")

	tr.ReplaceAPIKeys([]string{"fresh"})
	result := tr.Translate(context.Background(), "anything")

	assert.True(t, result.UsedAI)
	assert.Equal(t, []string{"stale", "fresh"}, keys)
}

func TestTranslate_FallsBackWhenAllKeysFail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"k1", "k2"})
	result := tr.Translate(context.Background(), "highly cited papers on fusion from 2023")

	assert.False(t, result.UsedAI)
	assert.Equal(t, "highly cited papers on fusion from 2023", result.Params[domain.ParamSearch])
	assert.Contains(t, result.Params[domain.ParamFilter], "publication_year:2023")
	assert.Contains(t, result.Params[domain.ParamFilter], "cited_by_count:>50")
	assert.Equal(t, "cited_by_count:desc", result.Params[domain.ParamSort])
}

func TestTranslate_FallsBackOnMalformedJSON(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(geminiReply("I could not produce JSON for that request.")))
	}))
	defer server.Close()

	tr := newTestTranslator(t, server.URL, []string{"k1", "k2", "k3"})
	result := tr.Translate(context.Background(), "messy query")

	// Malformed payloads do not burn remaining keys
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, result.UsedAI)
	assert.Equal(t, "messy query", result.Params[domain.ParamSearch])
}

func TestTranslate_NoKeysConfigured(t *testing.T) {
	tr := NewGeminiTranslator(Config{}, zerolog.Nop(), nil)
	result := tr.Translate(context.Background(), "open access climate research")

	assert.False(t, result.UsedAI)
	assert.Equal(t, "open access climate research", result.Params[domain.ParamSearch])
	assert.Equal(t, "is_oa:true", result.Params[domain.ParamFilter])
}

func TestHeuristicRequest(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantFilter string
	}{
		{
			name:       "plain query",
			query:      "machine learning",
			wantFilter: "",
		},
		{
			name:       "latest year wins",
			query:      "transformers between 2019 and 2023",
			wantFilter: "publication_year:2023",
		},
		{
			name:       "open access keyword",
			query:      "open access genomics",
			wantFilter: "is_oa:true",
		},
		{
			name:       "influential keyword",
			query:      "influential work on RNA",
			wantFilter: "cited_by_count:>50",
		},
		{
			name:       "combined",
			query:      "popular open access robotics from 2022",
			wantFilter: "publication_year:2022,is_oa:true,cited_by_count:>50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := HeuristicRequest(tt.query)

			assert.Equal(t, tt.query, params[domain.ParamSearch])
			assert.Equal(t, "cited_by_count:desc", params[domain.ParamSort])
			assert.Equal(t, tt.wantFilter, params[domain.ParamFilter])
		})
	}
}

func TestExtractJSONPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fenced with hint", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONPayload(tt.raw))
		})
	}
}
