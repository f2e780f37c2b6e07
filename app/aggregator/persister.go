package aggregator

import (
	"log/slog"

	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/tasks"
)

type TaskEnqueuer interface {
	EnqueueTask(task tasks.TaskInterface) error
}

// TaskPersister hands article sets to the background scheduler. Failures
// are logged and never reach the request that triggered the fetch.
type TaskPersister struct {
	scheduler   TaskEnqueuer
	articleRepo database.ArticleRepository
}

func NewTaskPersister(scheduler TaskEnqueuer, articleRepo database.ArticleRepository) *TaskPersister {
	return &TaskPersister{
		scheduler:   scheduler,
		articleRepo: articleRepo,
	}
}

func (p *TaskPersister) Persist(sel feed.Selector, articles []feed.Article) {
	if len(articles) == 0 {
		return
	}

	task := tasks.NewPersistArticlesTask(sel, articles, p.articleRepo)
	if err := p.scheduler.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue PersistArticlesTask", "category", sel.String(), "articles", len(articles), "error", err)
	}
}
