package feed

import "slices"

// Merge returns the articles ordered newest first. Articles published at the
// same instant keep their input order. The input slice is not modified.
func Merge(articles []Article) []Article {
	merged := slices.Clone(articles)
	if merged == nil {
		merged = []Article{}
	}

	slices.SortStableFunc(merged, func(a, b Article) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})

	return merged
}
