// Package scrapegraph provides the adapter for the ScrapeGraph web-scraping
// API: smart extraction, search, sentiment analysis, summarisation, and
// markdown conversion. Each operation is one outbound call.
package scrapegraph

import (
	"context"

	"github.com/bananabit/fluxgate/internal/upstream"
)

// DefaultBaseURL is the production ScrapeGraph API endpoint.
const DefaultBaseURL = "https://api.scrapegraphai.com/v1"

const (
	smartscraperPath = "/smartscraper"
	searchPath       = "/searchscraper"
	sentimentPath    = "/sentiment"
	summarizePath    = "/summarize"
	markdownifyPath  = "/markdownify"
)

// extractPrompt is the default instruction for content extraction.
const extractPrompt = "Extract all relevant content from this page"

// Client is the ScrapeGraph adapter. It owns its own HTTP connection pool
// and shares no state with other adapters.
type Client struct {
	api *upstream.Client
}

// New creates a ScrapeGraph client. baseURL falls back to [DefaultBaseURL]
// when empty.
func New(baseURL, apiKey string, opts ...upstream.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{api: upstream.NewClient("scrapegraph", baseURL, apiKey, opts...)}
}

// scrapeRequest is the outbound payload for smartscraper and markdownify.
type scrapeRequest struct {
	WebsiteURL string `json:"website_url,omitempty"`
	UserPrompt string `json:"user_prompt,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// PageContent is the structured result of a content extraction.
type PageContent struct {
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Extract pulls structured content from a single URL.
func (c *Client) Extract(ctx context.Context, url string) (*PageContent, error) {
	var out PageContent
	err := c.api.PostJSON(ctx, smartscraperPath, scrapeRequest{
		WebsiteURL: url,
		UserPrompt: extractPrompt,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// searchResponse wraps the result list of a search call.
type searchResponse struct {
	Results []PageContent `json:"results"`
}

// Search runs a scraping search for query, returning up to maxResults pages.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]PageContent, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	var out searchResponse
	err := c.api.PostJSON(ctx, searchPath, scrapeRequest{
		UserPrompt: query,
		MaxResults: maxResults,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

// textRequest is the outbound payload for the text-analysis operations.
type textRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length,omitempty"`
}

// Sentiment holds the result of a sentiment analysis.
type Sentiment struct {
	Sentiment  string  `json:"sentiment"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// AnalyzeSentiment scores the sentiment of text.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (*Sentiment, error) {
	var out Sentiment
	if err := c.api.PostJSON(ctx, sentimentPath, textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// summaryResponse wraps a summarisation result.
type summaryResponse struct {
	Summary string `json:"summary"`
}

// Summarize produces a summary of text bounded to maxLength words.
func (c *Client) Summarize(ctx context.Context, text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = 100
	}
	var out summaryResponse
	err := c.api.PostJSON(ctx, summarizePath, textRequest{Text: text, MaxLength: maxLength}, &out)
	if err != nil {
		return "", err
	}
	return out.Summary, nil
}

// markdownResponse wraps a markdownify result.
type markdownResponse struct {
	Markdown string `json:"result"`
}

// Markdownify converts the page at url to clean markdown.
func (c *Client) Markdownify(ctx context.Context, url string) (string, error) {
	var out markdownResponse
	err := c.api.PostJSON(ctx, markdownifyPath, scrapeRequest{WebsiteURL: url}, &out)
	if err != nil {
		return "", err
	}
	return out.Markdown, nil
}
