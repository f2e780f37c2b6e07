package api

import (
	"context"
	"time"

	"github.com/lysyi3m/news-comb/app/aggregator"
	"github.com/lysyi3m/news-comb/app/cache"
	"github.com/lysyi3m/news-comb/app/feed"
)

type NewsService interface {
	GetArticles(ctx context.Context, sel feed.Selector, limit int) ([]feed.Article, error)
	Search(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error)
	SearchArchive(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error)
	CacheStats() map[string]cache.EntryStats
	InvalidateCache(sel *feed.Selector)
}

var _ NewsService = (*aggregator.Aggregator)(nil)

type GeneratorInterface interface {
	Run(sel feed.Selector, articles []feed.Article, now time.Time) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	news        NewsService
	generator   GeneratorInterface
	sourceCount int
	cacheTTL    time.Duration
	version     string
	articles    ArticleCounter
	now         func() time.Time
}

// ArticleResponse is an article as served over HTTP. Its id is the URL.
type ArticleResponse struct {
	ID string `json:"id"`
	feed.Article
}

type ArticlesResponse struct {
	Articles []ArticleResponse `json:"articles"`
	Count    int               `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RateLimit is the per-caller request budget of one endpoint family.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

type RateLimits struct {
	News    RateLimit
	Search  RateLimit
	Archive RateLimit
	Cache   RateLimit
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		News:    RateLimit{Limit: 30, Window: time.Minute},
		Search:  RateLimit{Limit: 20, Window: time.Minute},
		Archive: RateLimit{Limit: 20, Window: time.Minute},
		Cache:   RateLimit{Limit: 10, Window: time.Minute},
	}
}

type ServerOptions struct {
	APIAccessKey string
	AppURL       string
	RateLimits   RateLimits
	// TrustedProxies may set X-Forwarded-For. Empty means the peer address
	// identifies the caller.
	TrustedProxies []string
}
