package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, limiter *ratelimit.Limiter, opts ServerOptions) (*gin.Engine, error) {
	r := gin.New()

	// Rate limits key on the client IP, so only listed proxies may supply it
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: accessLogFormatter,
		SkipPaths: []string{"/metrics"},
	}))
	r.Use(gin.Recovery())
	r.Use(prometheusMiddleware())
	r.Use(securityHeaders())
	r.Use(cors.New(corsConfig(opts.AppURL)))

	// Routes
	setupRoutes(r, handler, limiter, opts)

	return r, nil
}

func corsConfig(appURL string) cors.Config {
	config := cors.DefaultConfig()
	if appURL != "" {
		config.AllowOrigins = []string{appURL}
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowMethods = []string{http.MethodGet, http.MethodDelete, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"}
	config.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}

	return config
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, limiter *ratelimit.Limiter, opts ServerOptions) {
	limits := opts.RateLimits
	if limits == (RateLimits{}) {
		limits = DefaultRateLimits()
	}

	news := r.Group("/api/news")
	{
		news.GET("", rateLimitMiddleware(limiter, "news", limits.News), handler.GetNews)
		news.GET("/rss", rateLimitMiddleware(limiter, "news", limits.News), handler.GetNewsRSS)
		news.GET("/search", rateLimitMiddleware(limiter, "search", limits.Search), handler.SearchNews)
		news.GET("/archive", rateLimitMiddleware(limiter, "archive", limits.Archive), handler.SearchArchive)

		cache := news.Group("/cache")
		cache.Use(rateLimitMiddleware(limiter, "cache", limits.Cache))
		if opts.APIAccessKey != "" {
			cache.Use(authMiddleware(opts.APIAccessKey))
			slog.Info("Cache endpoints require an API key")
		} else {
			slog.Warn("Cache endpoints are unauthenticated (API_ACCESS_KEY not set)")
		}
		cache.GET("", handler.GetCacheStats)
		cache.DELETE("", handler.InvalidateCache)
	}

	// Health and status endpoints
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", handler.Index)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}
