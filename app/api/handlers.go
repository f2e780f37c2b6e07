package api

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/aggregator"
	"github.com/lysyi3m/news-comb/app/feed"
)

const (
	DefaultPageSize      = 20
	staleWhileRevalidate = 24 * time.Hour
)

type ArticleCounter interface {
	GetArticleCount(ctx context.Context) (int, error)
}

type HandlerOptions struct {
	SourceCount int
	CacheTTL    time.Duration
	Version     string
	// Articles reports the archive size in health checks. Optional.
	Articles ArticleCounter
}

func NewHandler(news NewsService, generator GeneratorInterface, opts HandlerOptions) *Handler {
	return &Handler{
		news:        news,
		generator:   generator,
		sourceCount: opts.SourceCount,
		cacheTTL:    opts.CacheTTL,
		version:     opts.Version,
		articles:    opts.Articles,
		now:         time.Now,
	}
}

// GetNews serves the merged article list for a category.
// Query params: category (tech, cybersecurity, all), limit (positive integer).
func (h *Handler) GetNews(c *gin.Context) {
	sel, ok := h.parseCategory(c)
	if !ok {
		return
	}

	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}

	articles, err := h.news.GetArticles(c.Request.Context(), sel, limit)
	if err != nil {
		h.internalError(c, "Failed to load articles", err)
		return
	}

	h.setCacheHeaders(c)
	c.JSON(http.StatusOK, newArticlesResponse(articles))
}

// GetNewsRSS serves the same article list as GetNews as an RSS 2.0 document.
func (h *Handler) GetNewsRSS(c *gin.Context) {
	sel, ok := h.parseCategory(c)
	if !ok {
		return
	}

	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}

	articles, err := h.news.GetArticles(c.Request.Context(), sel, limit)
	if err != nil {
		h.internalError(c, "Failed to load articles", err)
		return
	}

	rss, err := h.generator.Run(sel, articles, h.now())
	if err != nil {
		h.internalError(c, "Failed to generate feed", err)
		return
	}

	h.setCacheHeaders(c)
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", []byte(rss))
}

// SearchNews filters the cached article set by a case-insensitive substring.
// Query params: q (required, 1-100 characters), category.
func (h *Handler) SearchNews(c *gin.Context) {
	query, err := aggregator.ValidateQuery(cmp.Or(c.Query("q"), c.Query("query")))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query",
			Details: err.Error(),
		})
		return
	}

	sel, ok := h.parseCategory(c)
	if !ok {
		return
	}

	articles, err := h.news.Search(c.Request.Context(), query, sel)
	if err != nil {
		h.internalError(c, "Failed to search articles", err)
		return
	}

	c.JSON(http.StatusOK, newArticlesResponse(articles))
}

// SearchArchive searches persisted articles. The query may be empty.
func (h *Handler) SearchArchive(c *gin.Context) {
	query := cmp.Or(c.Query("q"), c.Query("query"))
	if query != "" {
		var err error
		if query, err = aggregator.ValidateQuery(query); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid query",
				Details: err.Error(),
			})
			return
		}
	}

	sel, ok := h.parseCategory(c)
	if !ok {
		return
	}

	articles, err := h.news.SearchArchive(c.Request.Context(), query, sel)
	if errors.Is(err, aggregator.ErrArchiveDisabled) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Archive unavailable",
			Details: "Article persistence is not configured",
		})
		return
	}
	if err != nil {
		h.internalError(c, "Failed to search archive", err)
		return
	}

	c.JSON(http.StatusOK, newArticlesResponse(articles))
}

func (h *Handler) GetCacheStats(c *gin.Context) {
	stats := h.news.CacheStats()

	c.JSON(http.StatusOK, gin.H{
		"entries": stats,
		"count":   len(stats),
		"ttl":     h.cacheTTL.String(),
	})
}

// InvalidateCache drops one category's cache entry, or every entry when no
// category is given.
func (h *Handler) InvalidateCache(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		h.news.InvalidateCache(nil)
		c.JSON(http.StatusOK, gin.H{"message": "Cache invalidated"})
		return
	}

	sel, err := feed.ParseSelector(category)
	if err != nil {
		h.badCategory(c, err)
		return
	}

	h.news.InvalidateCache(&sel)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Cache invalidated",
		"category": sel,
	})
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(c *gin.Context) {
	response := gin.H{
		"status":        "ok",
		"timestamp":     h.now().UTC().Format(time.RFC3339),
		"version":       h.version,
		"sources":       h.sourceCount,
		"cache_entries": len(h.news.CacheStats()),
	}

	if h.articles != nil {
		count, err := h.articles.GetArticleCount(c.Request.Context())
		if err != nil {
			slog.Error("Health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "Database unavailable",
			})
			return
		}
		response["archived_articles"] = count
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "News Comb",
		"version": h.version,
		"endpoints": []string{
			"GET /api/news?category=&limit=",
			"GET /api/news/rss?category=&limit=",
			"GET /api/news/search?q=&category=",
			"GET /api/news/archive?q=&category=",
			"GET /api/news/cache",
			"DELETE /api/news/cache?category=",
			"GET /health",
			"GET /metrics",
		},
	})
}

func (h *Handler) parseCategory(c *gin.Context) (feed.Selector, bool) {
	sel, err := feed.ParseSelector(c.DefaultQuery("category", string(feed.SelectAll)))
	if err != nil {
		h.badCategory(c, err)
		return "", false
	}
	return sel, true
}

func (h *Handler) parseLimit(c *gin.Context) (int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPageSize)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid limit",
			Details: "limit must be a positive integer",
		})
		return 0, false
	}
	return limit, true
}

func (h *Handler) badCategory(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid category",
		Details: err.Error(),
	})
}

func (h *Handler) internalError(c *gin.Context, message string, err error) {
	slog.Error(message, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: message})
}

func (h *Handler) setCacheHeaders(c *gin.Context) {
	c.Header("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d",
		int(h.cacheTTL.Seconds()), int(staleWhileRevalidate.Seconds())))
}

func newArticlesResponse(articles []feed.Article) ArticlesResponse {
	items := make([]ArticleResponse, 0, len(articles))
	for _, article := range articles {
		items = append(items, ArticleResponse{ID: article.URL, Article: article})
	}
	return ArticlesResponse{Articles: items, Count: len(items)}
}
