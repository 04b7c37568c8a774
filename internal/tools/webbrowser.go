package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const maxExtractedChars = 8000

// SearchHit is a single organic search result.
type SearchHit struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// WebBrowserTool searches the web via SerpApi and extracts page content.
type WebBrowserTool struct {
	apiKey       string
	endpoint     string
	monthlyLimit int
	maxResults   int
	cacheTTL     time.Duration
	counterPath  string
	httpClient   *http.Client

	mu    sync.Mutex
	cache map[string]cachedPage
}

type cachedPage struct {
	text      string
	fetchedAt time.Time
}

type searchCounter struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// WebBrowserOptions configures a WebBrowserTool.
type WebBrowserOptions struct {
	APIKey       string
	Endpoint     string // defaults to https://serpapi.com/search
	MonthlyLimit int    // defaults to 100
	MaxResults   int    // defaults to 5
	CacheTTL     time.Duration
	CounterPath  string
}

// NewWebBrowserTool creates a new WebBrowserTool.
func NewWebBrowserTool(opts WebBrowserOptions) *WebBrowserTool {
	if opts.Endpoint == "" {
		opts.Endpoint = "https://serpapi.com/search"
	}
	if opts.MonthlyLimit <= 0 {
		opts.MonthlyLimit = 100
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &WebBrowserTool{
		apiKey:       opts.APIKey,
		endpoint:     strings.TrimSuffix(opts.Endpoint, "/"),
		monthlyLimit: opts.MonthlyLimit,
		maxResults:   opts.MaxResults,
		cacheTTL:     opts.CacheTTL,
		counterPath:  opts.CounterPath,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		cache:        make(map[string]cachedPage),
	}
}

func (t *WebBrowserTool) Definition() Definition {
	return Definition{
		Name:        "web_browser",
		Description: "Search the web and extract readable text from pages.",
		Parameters: map[string]ParamSpec{
			"action": {
				Type:        "string",
				Description: "The action to perform",
				Required:    true,
				Enum:        []string{"search", "extract", "search_and_extract"},
			},
			"query": {
				Type:        "string",
				Description: "Search query (for search, search_and_extract)",
			},
			"url": {
				Type:        "string",
				Description: "Page URL (for extract)",
			},
			"num_results": {
				Type:        "integer",
				Description: "Number of results to return",
				Default:     5,
			},
		},
		Examples: []string{
			`{"tool_name": "web_browser", "parameters": {"action": "search", "query": "golang news"}}`,
		},
	}
}

func (t *WebBrowserTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	action := GetString(params, "action", "")
	switch action {
	case "search":
		return t.doSearch(ctx, GetString(params, "query", ""), GetInt(params, "num_results", t.maxResults))
	case "extract":
		return t.doExtract(ctx, GetString(params, "url", ""))
	case "search_and_extract":
		return t.doSearchAndExtract(ctx, GetString(params, "query", ""), GetInt(params, "num_results", t.maxResults))
	default:
		return errPayload(fmt.Sprintf("不支持的操作: %s", action)), nil
	}
}

func (t *WebBrowserTool) doSearch(ctx context.Context, query string, num int) (any, error) {
	if query == "" {
		return errPayload("搜索关键词不能为空"), nil
	}
	if !t.consumeQuota() {
		return errPayload(fmt.Sprintf("本月搜索次数已达上限 (%d)", t.monthlyLimit)), nil
	}

	hits, err := t.serpSearch(ctx, query, num)
	if err != nil {
		return errPayload(fmt.Sprintf("搜索失败: %v", err)), nil
	}
	return map[string]any{"action": "search", "query": query, "results": hits, "count": len(hits)}, nil
}

func (t *WebBrowserTool) doExtract(ctx context.Context, pageURL string) (any, error) {
	if pageURL == "" {
		return errPayload("URL 不能为空"), nil
	}
	text, err := t.extractPage(ctx, pageURL)
	if err != nil {
		return errPayload(fmt.Sprintf("提取页面内容失败: %v", err)), nil
	}
	return map[string]any{"action": "extract", "url": pageURL, "content": text}, nil
}

func (t *WebBrowserTool) doSearchAndExtract(ctx context.Context, query string, num int) (any, error) {
	if query == "" {
		return errPayload("搜索关键词不能为空"), nil
	}
	if !t.consumeQuota() {
		return errPayload(fmt.Sprintf("本月搜索次数已达上限 (%d)", t.monthlyLimit)), nil
	}

	hits, err := t.serpSearch(ctx, query, num)
	if err != nil {
		return errPayload(fmt.Sprintf("搜索失败: %v", err)), nil
	}

	type pageResult struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Content string `json:"content"`
	}
	pages := make([]pageResult, len(hits))
	var wg sync.WaitGroup
	for i, hit := range hits {
		wg.Add(1)
		go func(i int, hit SearchHit) {
			defer wg.Done()
			pages[i] = pageResult{Title: hit.Title, Link: hit.Link}
			text, err := t.extractPage(ctx, hit.Link)
			if err != nil {
				pages[i].Content = fmt.Sprintf("(提取失败: %v)", err)
				return
			}
			pages[i].Content = text
		}(i, hit)
	}
	wg.Wait()

	return map[string]any{"action": "search_and_extract", "query": query, "results": pages, "count": len(pages)}, nil
}

func (t *WebBrowserTool) serpSearch(ctx context.Context, query string, num int) ([]SearchHit, error) {
	if num <= 0 || num > t.maxResults {
		num = t.maxResults
	}
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", t.apiKey)
	q.Set("num", fmt.Sprintf("%d", num))

	req, err := http.NewRequestWithContext(ctx, "GET", t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		OrganicResults []SearchHit `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	hits := parsed.OrganicResults
	if len(hits) > num {
		hits = hits[:num]
	}
	return hits, nil
}

func (t *WebBrowserTool) extractPage(ctx context.Context, pageURL string) (string, error) {
	t.mu.Lock()
	if entry, ok := t.cache[pageURL]; ok && time.Since(entry.fetchedAt) < t.cacheTTL {
		t.mu.Unlock()
		return entry.text, nil
	}
	t.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; aidesk/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	text, err := extractText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	if len(text) > maxExtractedChars {
		// Cut on a rune boundary.
		cut := maxExtractedChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	t.mu.Lock()
	t.cache[pageURL] = cachedPage{text: text, fetchedAt: time.Now()}
	t.mu.Unlock()

	return text, nil
}

// extractText walks the HTML tree collecting visible text, skipping
// script/style/head subtrees.
func extractText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				b.WriteString(trimmed)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.TrimSpace(b.String()), nil
}

// consumeQuota increments the monthly search counter, returning false when
// the limit is exhausted. The counter survives restarts via the counter file.
func (t *WebBrowserTool) consumeQuota() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	month := time.Now().Format("2006-01")
	counter := searchCounter{Month: month}
	if t.counterPath != "" {
		if data, err := os.ReadFile(t.counterPath); err == nil {
			var saved searchCounter
			if json.Unmarshal(data, &saved) == nil && saved.Month == month {
				counter = saved
			}
		}
	}

	if counter.Count >= t.monthlyLimit {
		return false
	}
	counter.Count++

	if t.counterPath != "" {
		if data, err := json.Marshal(counter); err == nil {
			os.MkdirAll(filepath.Dir(t.counterPath), 0755)
			os.WriteFile(t.counterPath, data, 0644)
		}
	}
	return true
}
