package database

import (
	"context"

	"github.com/lysyi3m/news-comb/app/feed"
)

type ArticleRepository interface {
	UpsertArticles(ctx context.Context, articles []feed.Article) (int, error)
	SearchArticles(ctx context.Context, query string, sel feed.Selector, limit int) ([]feed.Article, error)
	GetArticleCount(ctx context.Context) (int, error)
}
