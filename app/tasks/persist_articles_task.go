package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/metrics"
)

// PersistArticlesTask writes a freshly fetched article set to the article
// store. Already stored URLs are left untouched.
type PersistArticlesTask struct {
	Task
	articles    []feed.Article
	articleRepo database.ArticleRepository
}

func NewPersistArticlesTask(sel feed.Selector, articles []feed.Article, articleRepo database.ArticleRepository) *PersistArticlesTask {
	return &PersistArticlesTask{
		Task:        NewTask(TaskTypePersistArticles, sel.String()),
		articles:    articles,
		articleRepo: articleRepo,
	}
}

func (t *PersistArticlesTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	inserted, err := t.articleRepo.UpsertArticles(ctx, t.articles)
	if err != nil {
		return fmt.Errorf("failed to persist articles: %w", err)
	}

	metrics.ArticlesPersistedTotal.Add(float64(inserted))

	slog.Info("Task completed",
		"type", "PersistArticles",
		"category", t.Subject,
		"duration", t.GetDuration(),
		"total", len(t.articles),
		"duplicates", len(t.articles)-inserted,
		"new", inserted)

	return nil
}
