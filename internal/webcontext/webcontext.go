// Package webcontext implements the Web Context Fetcher: a best-effort
// enrichment step that returns a short text blob for a query or an empty
// string, and must never cause the request to fail (spec §2.4, §4.5 step 3).
package webcontext

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the per-call timeout mandated by §4.5 step 3.
const DefaultTimeout = 10 * time.Second

// Fetcher wraps a web search provider (grounded on the original Serper
// integration in browse_web) behind a never-fails contract.
type Fetcher struct {
	apiKey     string
	url        string
	numResults int
	httpClient *http.Client
}

// New constructs a Fetcher. An empty apiKey disables search entirely: Fetch
// always returns "" without attempting a network call, same as the original
// browse_web's early return.
func New(apiKey, url string) *Fetcher {
	if url == "" {
		url = "https://google.serper.dev/search"
	}
	return &Fetcher{
		apiKey:     apiKey,
		url:        url,
		numResults: 5,
		httpClient: &http.Client{Timeout: DefaultTimeout + 2*time.Second},
	}
}

type searchRequest struct {
	Q  string `json:"q"`
	Num int   `json:"num"`
	GL string `json:"gl"`
	HL string `json:"hl"`
}

type searchResponse struct {
	Organic []struct {
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Fetch returns a short text blob for the query, or "" on any failure
// (including a disabled provider). It never returns an error: the caller
// substitutes empty string and continues the pipeline unconditionally.
func (f *Fetcher) Fetch(ctx context.Context, query string) string {
	if f.apiKey == "" {
		return ""
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	body, err := json.Marshal(searchRequest{Q: query, Num: f.numResults, GL: "us", HL: "en"})
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return ""
	}
	req.Header.Set("X-API-KEY", f.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}

	var snippets []string
	for _, r := range result.Organic {
		if r.Snippet == "" {
			continue
		}
		snippets = append(snippets, r.Snippet)
		if len(snippets) >= f.numResults {
			break
		}
	}
	if len(snippets) == 0 {
		return ""
	}
	return "Web context:\n" + strings.Join(snippets, "\n")
}
