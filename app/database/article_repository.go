package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lysyi3m/news-comb/app/feed"
)

const DefaultSearchLimit = 50

type ArticleStore struct {
	db  *DB
	now func() time.Time
}

func NewArticleStore(db *DB) *ArticleStore {
	return &ArticleStore{db: db, now: time.Now}
}

// UpsertArticles inserts articles keyed by URL in one transaction. Articles
// whose URL is already stored are skipped. Returns the number inserted.
func (s *ArticleStore) UpsertArticles(ctx context.Context, articles []feed.Article) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO articles (
			url, title, description, image_url, source, category,
			published_at, author, tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := s.now().Unix()
	inserted := 0
	for _, article := range articles {
		if article.URL == "" {
			continue
		}

		tags, err := json.Marshal(nonNilTags(article.Tags))
		if err != nil {
			return 0, fmt.Errorf("failed to encode tags: %w", err)
		}

		result, err := stmt.ExecContext(ctx,
			article.URL, article.Title, article.Description, nullString(article.ImageURL),
			article.Source, string(article.Category), article.PublishedAt.Unix(),
			nullString(article.Author), string(tags), createdAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert article %s: %w", article.URL, err)
		}

		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// SearchArticles matches query against stored titles and descriptions,
// newest first. An empty query lists the newest articles.
func (s *ArticleStore) SearchArticles(ctx context.Context, query string, sel feed.Selector, limit int) ([]feed.Article, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var conditions []string
	var args []any

	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		conditions = append(conditions, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if sel != "" && sel != feed.SelectAll {
		conditions = append(conditions, "category = ?")
		args = append(args, sel.String())
	}

	sqlQuery := `
		SELECT url, title, description, image_url, source, category,
		       published_at, author, tags
		FROM articles`
	if len(conditions) > 0 {
		sqlQuery += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += "\n\t\tORDER BY published_at DESC\n\t\tLIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search articles: %w", err)
	}
	defer rows.Close()

	articles := []feed.Article{}
	for rows.Next() {
		var article feed.Article
		var category, tags string
		var imageURL, author sql.NullString
		var publishedAt int64

		err := rows.Scan(
			&article.URL, &article.Title, &article.Description, &imageURL,
			&article.Source, &category, &publishedAt, &author, &tags,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}

		article.Category = feed.Category(category)
		article.PublishedAt = time.Unix(publishedAt, 0).UTC()
		if imageURL.Valid {
			article.ImageURL = &imageURL.String
		}
		if author.Valid {
			article.Author = &author.String
		}
		if err := json.Unmarshal([]byte(tags), &article.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags for %s: %w", article.URL, err)
		}
		article.Tags = nonNilTags(article.Tags)

		articles = append(articles, article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (s *ArticleStore) GetArticleCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}

	return count, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
