package scrapegraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// recordingServer captures the last request path and body and replies with
// the configured JSON.
func recordingServer(t *testing.T, reply string) (*httptest.Server, *string, *map[string]any) {
	t.Helper()
	var path string
	body := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		clear(body)
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		w.Write([]byte(reply))                //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, &path, &body
}

func TestExtract(t *testing.T) {
	srv, path, body := recordingServer(t, `{"title":"T","url":"https://x","content":"body text","metadata":{"lang":"en"}}`)

	c := New(srv.URL, "key")
	page, err := c.Extract(context.Background(), "https://x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if *path != "/smartscraper" {
		t.Errorf("path = %q, want /smartscraper", *path)
	}
	if (*body)["website_url"] != "https://x" {
		t.Errorf("website_url = %v", (*body)["website_url"])
	}
	if prompt, _ := (*body)["user_prompt"].(string); prompt == "" {
		t.Error("extract call carried no user prompt")
	}
	if page.Title != "T" || page.Content != "body text" {
		t.Errorf("page = %+v", page)
	}
	if page.Metadata["lang"] != "en" {
		t.Errorf("metadata = %v", page.Metadata)
	}
}

func TestSearch_DefaultsMaxResults(t *testing.T) {
	srv, path, body := recordingServer(t, `{"results":[{"title":"A"},{"title":"B"}]}`)

	c := New(srv.URL, "key")
	results, err := c.Search(context.Background(), "golang semaphores", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if *path != "/searchscraper" {
		t.Errorf("path = %q, want /searchscraper", *path)
	}
	if (*body)["max_results"] != 10.0 {
		t.Errorf("max_results = %v, want default 10", (*body)["max_results"])
	}
	if len(results) != 2 || results[0].Title != "A" {
		t.Errorf("results = %+v", results)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	srv, path, _ := recordingServer(t, `{"sentiment":"positive","score":0.87,"confidence":0.92}`)

	c := New(srv.URL, "key")
	s, err := c.AnalyzeSentiment(context.Background(), "this gateway is great")
	if err != nil {
		t.Fatalf("AnalyzeSentiment: %v", err)
	}

	if *path != "/sentiment" {
		t.Errorf("path = %q, want /sentiment", *path)
	}
	if s.Sentiment != "positive" || s.Score != 0.87 {
		t.Errorf("sentiment = %+v", s)
	}
}

func TestSummarize(t *testing.T) {
	srv, path, body := recordingServer(t, `{"summary":"short version"}`)

	c := New(srv.URL, "key")
	sum, err := c.Summarize(context.Background(), "a very long text", 0)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if *path != "/summarize" {
		t.Errorf("path = %q, want /summarize", *path)
	}
	if (*body)["max_length"] != 100.0 {
		t.Errorf("max_length = %v, want default 100", (*body)["max_length"])
	}
	if sum != "short version" {
		t.Errorf("summary = %q", sum)
	}
}

func TestMarkdownify(t *testing.T) {
	srv, path, _ := recordingServer(t, `{"result":"# Heading\n\nbody"}`)

	c := New(srv.URL, "key")
	md, err := c.Markdownify(context.Background(), "https://x")
	if err != nil {
		t.Fatalf("Markdownify: %v", err)
	}

	if *path != "/markdownify" {
		t.Errorf("path = %q, want /markdownify", *path)
	}
	if md != "# Heading\n\nbody" {
		t.Errorf("markdown = %q", md)
	}
}
