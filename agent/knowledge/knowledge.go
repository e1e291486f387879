// Package knowledge is the client for the document retrieval service used to
// answer general product and company questions. The index itself lives behind
// the service; this client only queries and bounds the results for display.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

const (
	// maxSnippetLen bounds retrieved content for safe display.
	maxSnippetLen        = 500
	maxResponseSizeBytes = 4 << 20
)

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// HTTPRetriever queries the retrieval service over HTTP.
type HTTPRetriever struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ contractx.Retriever = (*HTTPRetriever)(nil)

func NewHTTPRetriever(cfg Config) (*HTTPRetriever, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("knowledge: service url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("knowledge: invalid service url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRetriever{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Query posts the question and returns the service's snippets in order,
// content truncated near maxSnippetLen with an ellipsis marker.
func (r *HTTPRetriever) Query(ctx context.Context, text string) ([]contractx.Snippet, error) {
	body, err := json.Marshal(map[string]string{"query": text})
	if err != nil {
		return nil, fmt.Errorf("knowledge: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("knowledge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("knowledge: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge: http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var snippets []contractx.Snippet
	if err := json.Unmarshal(raw, &snippets); err != nil {
		return nil, fmt.Errorf("knowledge: decode response: %w", err)
	}
	for i := range snippets {
		snippets[i].Content = Truncate(snippets[i].Content)
		if snippets[i].Source == "" {
			snippets[i].Source = "Unknown"
		}
	}
	return snippets, nil
}

// Truncate bounds content to maxSnippetLen including the ellipsis marker.
func Truncate(content string) string {
	if len(content) <= maxSnippetLen {
		return content
	}
	return content[:maxSnippetLen-3] + "..."
}
