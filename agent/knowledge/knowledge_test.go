package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("a", maxSnippetLen)
	if got := Truncate(short); got != short {
		t.Fatal("content at the limit must pass through unchanged")
	}

	long := strings.Repeat("b", maxSnippetLen+1)
	got := Truncate(long)
	if len(got) != maxSnippetLen {
		t.Fatalf("expected length %d, got %d", maxSnippetLen, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", got[len(got)-5:])
	}
}

func TestNewHTTPRetrieverValidatesURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPRetriever(Config{URL: "   "}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewHTTPRetriever(Config{URL: "not a url"}); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestQueryPostsAndNormalizes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/query" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["query"] != "opening hours" {
			t.Errorf("unexpected body: %v %v", req, err)
		}
		json.NewEncoder(w).Encode([]contractx.Snippet{
			{Source: "faq.md", Content: "We open at 9am."},
			{Source: "", Content: strings.Repeat("x", maxSnippetLen+50)},
		})
	}))
	defer srv.Close()

	r, err := NewHTTPRetriever(Config{URL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewHTTPRetriever failed: %v", err)
	}

	snippets, err := r.Query(context.Background(), "opening hours")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("expected 2 snippets, got %d", len(snippets))
	}
	if snippets[0].Content != "We open at 9am." || snippets[0].Source != "faq.md" {
		t.Fatalf("unexpected first snippet: %+v", snippets[0])
	}
	if snippets[1].Source != "Unknown" {
		t.Fatalf("expected Unknown source, got %q", snippets[1].Source)
	}
	if len(snippets[1].Content) != maxSnippetLen {
		t.Fatalf("expected truncated content, got length %d", len(snippets[1].Content))
	}
}

func TestQueryNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	r, err := NewHTTPRetriever(Config{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPRetriever failed: %v", err)
	}
	if _, err := r.Query(context.Background(), "anything"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
