package feed

import (
	"strings"

	"golang.org/x/text/cases"
)

// Matcher selects articles whose title, description or any tag contains the
// query, ignoring case. A Matcher is not safe for concurrent use.
type Matcher struct {
	caser cases.Caser
	query string
}

func NewMatcher(query string) *Matcher {
	caser := cases.Fold()
	return &Matcher{
		caser: caser,
		query: caser.String(strings.TrimSpace(query)),
	}
}

func (m *Matcher) Match(article Article) bool {
	if m.query == "" {
		return true
	}

	if m.contains(article.Title) || m.contains(article.Description) {
		return true
	}

	for _, tag := range article.Tags {
		if m.contains(tag) {
			return true
		}
	}

	return false
}

// Filter keeps matching articles in their original order.
func (m *Matcher) Filter(articles []Article) []Article {
	filtered := make([]Article, 0, len(articles))
	for _, article := range articles {
		if m.Match(article) {
			filtered = append(filtered, article)
		}
	}

	return filtered
}

func (m *Matcher) contains(value string) bool {
	return strings.Contains(m.caser.String(value), m.query)
}
