package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/aggregator"
	"github.com/lysyi3m/news-comb/app/cache"
	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockNewsService records the arguments it was called with
type MockNewsService struct {
	mu          sync.Mutex
	articles    []feed.Article
	archiveErr  error
	lastSel     feed.Selector
	lastLimit   int
	lastQuery   string
	invalidated []string
}

func (m *MockNewsService) GetArticles(ctx context.Context, sel feed.Selector, limit int) ([]feed.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSel, m.lastLimit = sel, limit
	return m.articles, nil
}

func (m *MockNewsService) Search(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSel, m.lastQuery = sel, query
	return m.articles, nil
}

func (m *MockNewsService) SearchArchive(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSel, m.lastQuery = sel, query
	if m.archiveErr != nil {
		return nil, m.archiveErr
	}
	return m.articles, nil
}

func (m *MockNewsService) CacheStats() map[string]cache.EntryStats {
	return map[string]cache.EntryStats{"tech": {AgeMinutes: 5, ItemCount: 2}}
}

func (m *MockNewsService) InvalidateCache(sel *feed.Selector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sel == nil {
		m.invalidated = append(m.invalidated, "*")
		return
	}
	m.invalidated = append(m.invalidated, sel.String())
}

type MockArticleCounter struct {
	count int
	err   error
}

func (m *MockArticleCounter) GetArticleCount(ctx context.Context) (int, error) {
	return m.count, m.err
}

func testArticles() []feed.Article {
	published := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	return []feed.Article{
		{
			Title:       "First",
			Description: "First description",
			URL:         "https://example.com/1",
			Source:      "Example",
			Category:    feed.Tech,
			PublishedAt: published,
			Tags:        []string{"go"},
		},
		{
			Title:       "Second",
			Description: "Second description",
			URL:         "https://example.com/2",
			Source:      "Example",
			Category:    feed.Cybersecurity,
			PublishedAt: published.Add(-time.Hour),
			Tags:        []string{},
		},
	}
}

func newTestServer(t *testing.T, news *MockNewsService, opts ServerOptions, handlerOpts HandlerOptions) *gin.Engine {
	handlerOpts.CacheTTL = cache.DefaultTTL
	handlerOpts.Version = "test"
	handler := NewHandler(news, feed.NewGenerator("https://news.example.com", "test"), handlerOpts)
	r, err := NewServer(handler, ratelimit.New(time.Now), opts)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return r
}

func doRequest(r http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	return doRequestFrom(r, "", method, target, headers)
}

// doRequestFrom sends a request from remoteAddr, or the httptest default
// peer 192.0.2.1 when empty.
func doRequestFrom(r http.Handler, remoteAddr, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetNews(t *testing.T) {
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if news.lastSel != feed.SelectAll {
		t.Errorf("Expected default category 'all', got '%s'", news.lastSel)
	}
	if news.lastLimit != DefaultPageSize {
		t.Errorf("Expected default limit %d, got %d", DefaultPageSize, news.lastLimit)
	}

	expectedCache := "public, s-maxage=28800, stale-while-revalidate=86400"
	if got := w.Header().Get("Cache-Control"); got != expectedCache {
		t.Errorf("Expected Cache-Control '%s', got '%s'", expectedCache, got)
	}

	var response ArticlesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Count != 2 || len(response.Articles) != 2 {
		t.Fatalf("Expected 2 articles, got count=%d len=%d", response.Count, len(response.Articles))
	}
	if response.Articles[0].ID != "https://example.com/1" {
		t.Errorf("Expected id to equal the article URL, got '%s'", response.Articles[0].ID)
	}
	if response.Articles[0].URL != "https://example.com/1" {
		t.Errorf("Expected url 'https://example.com/1', got '%s'", response.Articles[0].URL)
	}
	if response.Articles[1].Category != feed.Cybersecurity {
		t.Errorf("Expected category 'cybersecurity', got '%s'", response.Articles[1].Category)
	}
}

func TestGetNewsQueryParams(t *testing.T) {
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news?category=tech&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if news.lastSel != feed.SelectTech || news.lastLimit != 5 {
		t.Errorf("Expected tech/5, got %s/%d", news.lastSel, news.lastLimit)
	}

	tests := []string{
		"/api/news?category=sports",
		"/api/news?limit=0",
		"/api/news?limit=-3",
		"/api/news?limit=ten",
	}
	for _, target := range tests {
		w := doRequest(r, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, w.Code)
		}

		var response ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
			t.Fatalf("%s: failed to decode error: %v", target, err)
		}
		if response.Error == "" || response.Details == "" {
			t.Errorf("%s: expected error and details, got %+v", target, response)
		}
	}
}

func TestGetNewsRSS(t *testing.T) {
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news/rss?category=tech", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/rss+xml") {
		t.Errorf("Expected RSS content type, got '%s'", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `<rss version="2.0"`) {
		t.Error("Expected an RSS 2.0 document")
	}
	if !strings.Contains(body, "https://example.com/2") {
		t.Error("Expected the feed to contain every article")
	}
}

func TestSearchNews(t *testing.T) {
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news/search?q=%20breach%20&category=cybersecurity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if news.lastQuery != "breach" {
		t.Errorf("Expected trimmed query 'breach', got '%s'", news.lastQuery)
	}
	if news.lastSel != feed.SelectCybersecurity {
		t.Errorf("Expected category 'cybersecurity', got '%s'", news.lastSel)
	}

	tooLong := strings.Repeat("a", aggregator.MaxQueryLength+1)
	for _, target := range []string{"/api/news/search", "/api/news/search?q=%20%20", "/api/news/search?q=" + tooLong} {
		if w := doRequest(r, http.MethodGet, target, nil); w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400 for invalid query, got %d", w.Code)
		}
	}
}

func TestSearchArchive(t *testing.T) {
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for an empty archive query, got %d", w.Code)
	}

	news.archiveErr = aggregator.ErrArchiveDisabled
	w = doRequest(r, http.MethodGet, "/api/news/archive?q=go", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when the archive is disabled, got %d", w.Code)
	}

	news.archiveErr = errors.New("disk full")
	w = doRequest(r, http.MethodGet, "/api/news/archive?q=go", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500 on archive failure, got %d", w.Code)
	}
}

func TestRateLimiting(t *testing.T) {
	limit := RateLimit{Limit: 2, Window: time.Minute}
	opts := ServerOptions{RateLimits: RateLimits{News: limit, Search: limit, Archive: limit, Cache: limit}}
	news := &MockNewsService{articles: testArticles()}
	r := newTestServer(t, news, opts, HandlerOptions{})

	client := "203.0.113.7:40000"

	w := doRequestFrom(r, client, http.MethodGet, "/api/news", nil)
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("Expected 1 remaining request, got '%s'", got)
	}
	doRequestFrom(r, client, http.MethodGet, "/api/news/rss", nil)

	w = doRequestFrom(r, client, http.MethodGet, "/api/news", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header on a denied request")
	}

	var response ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode error: %v", err)
	}
	if response.Error != "Too many requests. Please try again later." {
		t.Errorf("Unexpected error message '%s'", response.Error)
	}

	// Search has its own budget
	if w := doRequestFrom(r, client, http.MethodGet, "/api/news/search?q=go", nil); w.Code != http.StatusOK {
		t.Errorf("Expected search to be admitted, got %d", w.Code)
	}

	// Another client has its own budget
	if w := doRequestFrom(r, "203.0.113.8:40000", http.MethodGet, "/api/news", nil); w.Code != http.StatusOK {
		t.Errorf("Expected another client to be admitted, got %d", w.Code)
	}
}

func TestRateLimitingIgnoresUntrustedForwardedFor(t *testing.T) {
	limit := RateLimit{Limit: 2, Window: time.Minute}
	opts := ServerOptions{RateLimits: RateLimits{News: limit, Search: limit, Archive: limit, Cache: limit}}
	r := newTestServer(t, &MockNewsService{}, opts, HandlerOptions{})

	rejected := 0
	for i := range 20 {
		headers := map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i+1)}
		w := doRequestFrom(r, "203.0.113.9:40000", http.MethodGet, "/api/news", headers)
		if w.Code == http.StatusTooManyRequests {
			rejected++
		}
	}

	if rejected != 18 {
		t.Errorf("Expected 18 rejected requests from one peer, got %d", rejected)
	}
}

func TestRateLimitingHonorsTrustedProxy(t *testing.T) {
	limit := RateLimit{Limit: 1, Window: time.Minute}
	opts := ServerOptions{
		RateLimits:     RateLimits{News: limit, Search: limit, Archive: limit, Cache: limit},
		TrustedProxies: []string{"192.0.2.1"},
	}
	r := newTestServer(t, &MockNewsService{}, opts, HandlerOptions{})

	first := map[string]string{"X-Forwarded-For": "198.51.100.20"}
	second := map[string]string{"X-Forwarded-For": "198.51.100.21"}

	if w := doRequest(r, http.MethodGet, "/api/news", first); w.Code != http.StatusOK {
		t.Errorf("Expected first client to be admitted, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/news", second); w.Code != http.StatusOK {
		t.Errorf("Expected second client behind the proxy to be admitted, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/news", first); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected first client to be rejected, got %d", w.Code)
	}
}

func TestNewServerRejectsInvalidTrustedProxy(t *testing.T) {
	handler := NewHandler(&MockNewsService{}, feed.NewGenerator("https://news.example.com", "test"), HandlerOptions{})
	if _, err := NewServer(handler, ratelimit.New(time.Now), ServerOptions{TrustedProxies: []string{"not-an-ip"}}); err == nil {
		t.Error("Expected error for an invalid trusted proxy")
	}
}

func TestHealthAndMetricsAreNotRateLimited(t *testing.T) {
	limit := RateLimit{Limit: 1, Window: time.Minute}
	opts := ServerOptions{RateLimits: RateLimits{News: limit, Search: limit, Archive: limit, Cache: limit}}
	r := newTestServer(t, &MockNewsService{}, opts, HandlerOptions{})

	for range 3 {
		if w := doRequest(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Errorf("Expected health status 200, got %d", w.Code)
		}
	}
	if w := doRequest(r, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Errorf("Expected metrics status 200, got %d", w.Code)
	}
}

func TestCacheEndpointsRequireAPIKey(t *testing.T) {
	news := &MockNewsService{}
	r := newTestServer(t, news, ServerOptions{APIAccessKey: "secret"}, HandlerOptions{})

	if w := doRequest(r, http.MethodGet, "/api/news/cache", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodGet, "/api/news/cache", map[string]string{"X-API-Key": "wrong"}); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong key, got %d", w.Code)
	}

	w := doRequest(r, http.MethodGet, "/api/news/cache", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with key, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"age_minutes":5`) {
		t.Errorf("Expected cache stats in body, got %s", w.Body.String())
	}

	w = doRequest(r, http.MethodDelete, "/api/news/cache?category=tech", map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with bearer key, got %d", w.Code)
	}
	w = doRequest(r, http.MethodDelete, "/api/news/cache", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if len(news.invalidated) != 2 || news.invalidated[0] != "tech" || news.invalidated[1] != "*" {
		t.Errorf("Expected invalidations [tech *], got %v", news.invalidated)
	}

	w = doRequest(r, http.MethodDelete, "/api/news/cache?category=weather", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown category, got %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	r := newTestServer(t, &MockNewsService{}, ServerOptions{}, HandlerOptions{
		SourceCount: 9,
		Articles:    &MockArticleCounter{count: 42},
	})

	w := doRequest(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", response["status"])
	}
	if response["sources"] != float64(9) {
		t.Errorf("Expected 9 sources, got %v", response["sources"])
	}
	if response["archived_articles"] != float64(42) {
		t.Errorf("Expected 42 archived articles, got %v", response["archived_articles"])
	}

	r = newTestServer(t, &MockNewsService{}, ServerOptions{}, HandlerOptions{
		Articles: &MockArticleCounter{err: errors.New("database is locked")},
	})
	if w := doRequest(r, http.MethodGet, "/health", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 when the database fails, got %d", w.Code)
	}
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	r := newTestServer(t, &MockNewsService{}, ServerOptions{AppURL: "https://app.example.com"}, HandlerOptions{})

	w := doRequest(r, http.MethodGet, "/api/news", map[string]string{"Origin": "https://app.example.com"})

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("Expected X-Frame-Options DENY, got '%s'", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("Expected X-Content-Type-Options nosniff, got '%s'", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Expected allowed origin 'https://app.example.com', got '%s'", got)
	}

	w = doRequest(r, http.MethodGet, "/api/news", map[string]string{"Origin": "https://evil.example.com"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a foreign origin, got %d", w.Code)
	}
}

func TestInvalidateCacheLeavesLoggingToService(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	news := &MockNewsService{}
	r := newTestServer(t, news, ServerOptions{}, HandlerOptions{})

	if w := doRequest(r, http.MethodDelete, "/api/news/cache?category=tech", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodDelete, "/api/news/cache", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if len(news.invalidated) != 2 {
		t.Errorf("Expected 2 invalidations, got %v", news.invalidated)
	}
	if strings.Contains(logs.String(), "Cache invalidated") {
		t.Errorf("Expected the handler not to log invalidations, got %q", logs.String())
	}
}
