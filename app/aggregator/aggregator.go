package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lysyi3m/news-comb/app/cache"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/feed"
	"golang.org/x/sync/singleflight"
)

const (
	MinQueryLength = 1
	MaxQueryLength = 100
)

var (
	ErrInvalidQuery    = errors.New("invalid search query")
	ErrArchiveDisabled = errors.New("article archive is not configured")
)

type SourceResolver interface {
	Sources(sel feed.Selector) []feed.Source
}

type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []feed.Source) []feed.SourceItems
}

// Persister receives every freshly fetched article set. It must not block.
type Persister interface {
	Persist(sel feed.Selector, articles []feed.Article)
}

type Options struct {
	Persister   Persister
	ArticleRepo database.ArticleRepository
	Now         func() time.Time
}

// Aggregator serves merged article views per category, from the cache when
// fresh and from the feeds otherwise.
type Aggregator struct {
	sources     SourceResolver
	fetcher     FeedFetcher
	store       *cache.Store
	persister   Persister
	articleRepo database.ArticleRepository
	now         func() time.Time
	inflight    singleflight.Group
}

func New(sources SourceResolver, fetcher FeedFetcher, store *cache.Store, opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		sources:     sources,
		fetcher:     fetcher,
		store:       store,
		persister:   opts.Persister,
		articleRepo: opts.ArticleRepo,
		now:         now,
	}
}

// GetArticles returns up to limit of the newest articles for sel. A limit of
// zero or less returns the full merged set. The cache always holds the full set.
func (a *Aggregator) GetArticles(ctx context.Context, sel feed.Selector, limit int) ([]feed.Article, error) {
	if _, err := feed.ParseSelector(sel.String()); err != nil {
		return nil, err
	}

	articles := a.articles(ctx, sel)
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	return articles, nil
}

// Search filters the full merged set for sel by a case-insensitive substring
// of the title, description or any tag.
func (a *Aggregator) Search(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error) {
	query, err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if _, err := feed.ParseSelector(sel.String()); err != nil {
		return nil, err
	}

	return feed.NewMatcher(query).Filter(a.articles(ctx, sel)), nil
}

// SearchArchive searches every article ever persisted, not only the cached view.
func (a *Aggregator) SearchArchive(ctx context.Context, query string, sel feed.Selector) ([]feed.Article, error) {
	if a.articleRepo == nil {
		return nil, ErrArchiveDisabled
	}

	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, fmt.Errorf("%w: longer than %d characters", ErrInvalidQuery, MaxQueryLength)
	}

	articles, err := a.articleRepo.SearchArticles(ctx, query, sel, database.DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search archive: %w", err)
	}

	return articles, nil
}

func (a *Aggregator) CacheStats() map[string]cache.EntryStats {
	return a.store.Stats()
}

// InvalidateCache drops the entry for sel, or every entry when sel is nil.
func (a *Aggregator) InvalidateCache(sel *feed.Selector) {
	if sel == nil {
		a.store.InvalidateAll()
		slog.Info("Cache invalidated", "category", "all entries")
		return
	}

	a.store.Invalidate(*sel)
	slog.Info("Cache invalidated", "category", sel.String())
}

func (a *Aggregator) articles(ctx context.Context, sel feed.Selector) []feed.Article {
	if articles, ok := a.store.Get(sel); ok {
		return articles
	}

	// Concurrent misses for one selector share a single fetch. The fetch
	// outlives a cancelled caller so the others still get a result.
	v, _, _ := a.inflight.Do(sel.String(), func() (any, error) {
		return a.refresh(context.WithoutCancel(ctx), sel), nil
	})

	return v.([]feed.Article)
}

func (a *Aggregator) refresh(ctx context.Context, sel feed.Selector) []feed.Article {
	start := time.Now()

	sources := a.sources.Sources(sel)
	results := a.fetcher.FetchAll(ctx, sources)

	now := a.now()
	var articles []feed.Article
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			continue
		}
		for _, item := range result.Items {
			articles = append(articles, feed.Normalize(item, result.Source.Name, result.Source.Category, now))
		}
	}

	merged := feed.Merge(articles)
	a.store.Put(sel, merged)

	if a.persister != nil {
		a.persister.Persist(sel, merged)
	}

	slog.Info("Articles refreshed",
		"category", sel.String(),
		"sources", len(sources),
		"failed", failed,
		"articles", len(merged),
		"duration", time.Since(start))

	return merged
}

// ValidateQuery trims a search query and checks its length in characters.
func ValidateQuery(query string) (string, error) {
	query = strings.TrimSpace(query)

	length := utf8.RuneCountInString(query)
	if length < MinQueryLength {
		return "", fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	if length > MaxQueryLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidQuery, MaxQueryLength)
	}

	return query, nil
}
