package fundboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// News providers.
const (
	NewsProviderService = "service"
	NewsProviderTavily  = "tavily"
)

const (
	// DefaultTavilyURL is the Tavily search endpoint.
	DefaultTavilyURL    = "https://api.tavily.com"
	defaultNewsTimeout  = 60 * time.Second
	maxNewsSnippetRunes = 600
)

// NewsItem is one news search hit.
type NewsItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// NewsQuery is a news search request.
type NewsQuery struct {
	Query  string
	APIKey string
	Limit  int
}

// NewsSearchGateway searches recent news.
type NewsSearchGateway interface {
	SearchNews(ctx context.Context, q NewsQuery) ([]NewsItem, error)
}

func newNewsGateway(opts Options, logger *slog.Logger) NewsSearchGateway {
	timeout := defaultDuration(opts.NewsTimeout, defaultNewsTimeout)
	if strings.EqualFold(strings.TrimSpace(opts.NewsProvider), NewsProviderTavily) {
		return NewTavilyNewsClient(WithBaseURL(opts.TavilyURL), WithTimeout(timeout), WithLogger(logger))
	}
	return NewServiceNewsClient(WithBaseURL(opts.DataServiceURL), WithTimeout(timeout), WithLogger(logger))
}

// ServiceNewsClient relays news searches through the companion data service.
type ServiceNewsClient struct {
	gatewayClient
}

// NewServiceNewsClient creates a relay news client.
func NewServiceNewsClient(opts ...ClientOption) *ServiceNewsClient {
	return &ServiceNewsClient{gatewayClient: newGatewayClient(DefaultDataServiceURL, opts...)}
}

// SearchNews posts {query, api_key, limit} to {base}/search/news.
func (c *ServiceNewsClient) SearchNews(ctx context.Context, q NewsQuery) ([]NewsItem, error) {
	if err := validateNewsQuery(q); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"query":   q.Query,
		"api_key": q.APIKey,
		"limit":   q.Limit,
	}
	var items []NewsItem
	if err := c.postJSON(ctx, c.baseURL+"/search/news", payload, &items); err != nil {
		return nil, err
	}
	return cleanNewsItems(items, q.Limit), nil
}

// TavilyNewsClient calls the Tavily search API directly.
type TavilyNewsClient struct {
	gatewayClient
}

// NewTavilyNewsClient creates a direct Tavily client.
func NewTavilyNewsClient(opts ...ClientOption) *TavilyNewsClient {
	return &TavilyNewsClient{gatewayClient: newGatewayClient(DefaultTavilyURL, opts...)}
}

type tavilySearchResponse struct {
	Results []NewsItem `json:"results"`
}

// SearchNews runs an advanced news-topic search.
func (c *TavilyNewsClient) SearchNews(ctx context.Context, q NewsQuery) ([]NewsItem, error) {
	if err := validateNewsQuery(q); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"api_key":             q.APIKey,
		"query":               q.Query,
		"topic":               "news",
		"search_depth":        "advanced",
		"max_results":         q.Limit,
		"include_answer":      false,
		"include_raw_content": false,
		"include_images":      false,
	}
	var resp tavilySearchResponse
	if err := c.postJSON(ctx, c.baseURL+"/search", payload, &resp); err != nil {
		return nil, err
	}
	return cleanNewsItems(resp.Results, q.Limit), nil
}

func validateNewsQuery(q NewsQuery) error {
	if strings.TrimSpace(q.Query) == "" {
		return errors.New("news query is required")
	}
	if strings.TrimSpace(q.APIKey) == "" {
		return errors.New("search api key is required")
	}
	if q.Limit <= 0 {
		return errors.New("news limit must be positive")
	}
	return nil
}

func cleanNewsItems(items []NewsItem, limit int) []NewsItem {
	cleaned := make([]NewsItem, 0, len(items))
	for _, item := range items {
		item.Title = collapseWhitespace(stripHTML(item.Title))
		item.URL = strings.TrimSpace(item.URL)
		item.Content = truncateRunes(collapseWhitespace(stripHTML(item.Content)), maxNewsSnippetRunes)
		if item.Title == "" && item.Content == "" {
			continue
		}
		cleaned = append(cleaned, item)
		if len(cleaned) == limit {
			break
		}
	}
	return cleaned
}

// stripHTML returns the text content of an HTML fragment. Plain text passes through.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// newsOutcome is the result of a best-effort news search: Err is kept for
// logging only and Items is empty whenever Err is set.
type newsOutcome struct {
	Items []NewsItem
	Err   error
}

// searchNewsBestEffort never fails; errors become an empty list.
func (c *Core) searchNewsBestEffort(ctx context.Context, q NewsQuery) newsOutcome {
	items, err := c.news.SearchNews(ctx, q)
	if err != nil {
		c.logger.Warn("news search failed; continuing without news", "query", q.Query, "err", err)
		return newsOutcome{Items: []NewsItem{}, Err: err}
	}
	if items == nil {
		items = []NewsItem{}
	}
	return newsOutcome{Items: items}
}
