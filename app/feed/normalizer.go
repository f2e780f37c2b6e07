package feed

import (
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultTitle = "No title"

// Normalize maps a raw feed entry into an Article. It never fails: missing
// fields resolve to their documented defaults, and a missing publish time
// resolves to now.
func Normalize(raw RawItem, sourceName string, category Category, now time.Time) Article {
	article := Article{
		Title:       strings.TrimSpace(raw.Title),
		Description: plainText(raw.Description),
		URL:         strings.TrimSpace(raw.Link),
		Source:      sourceName,
		Category:    category,
		PublishedAt: now,
		Tags:        make([]string, 0, len(raw.Categories)),
	}

	if article.Title == "" {
		article.Title = DefaultTitle
	}
	if article.Description == "" {
		article.Description = plainText(raw.Content)
	}
	if raw.PublishedAt != nil && !raw.PublishedAt.IsZero() {
		article.PublishedAt = *raw.PublishedAt
	}
	if raw.EnclosureURL != "" {
		imageURL := raw.EnclosureURL
		article.ImageURL = &imageURL
	}
	if author := strings.TrimSpace(raw.Author); author != "" {
		article.Author = &author
	}

	for _, tag := range raw.Categories {
		if tag = strings.TrimSpace(tag); tag != "" {
			article.Tags = append(article.Tags, tag)
		}
	}

	return article
}

// plainText drops markup, script and style bodies, and collapses whitespace.
func plainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	var sb strings.Builder
	skip := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			tt := z.Token()
			switch tt.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				if tt.Type == html.StartTagToken {
					skip++
				} else if tt.Type == html.EndTagToken && skip > 0 {
					skip--
				}
			case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}
