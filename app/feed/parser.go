package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses RSS, Atom or JSON feed data into raw items in feed order.
func (p *Parser) Run(data []byte) ([]RawItem, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.rawItem(item))
	}

	return items, nil
}

func (p *Parser) rawItem(item *gofeed.Item) RawItem {
	raw := RawItem{
		Title:       item.Title,
		Description: item.Description,
		Content:     item.Content,
		Link:        item.Link,
		Author:      p.extractAuthor(item),
		Categories:  item.Categories,
	}

	// Atom entries without <published> still carry <updated>
	if item.PublishedParsed != nil {
		raw.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		raw.PublishedAt = item.UpdatedParsed
	}

	// RSS 2.0 allows only one enclosure per item
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		raw.EnclosureURL = strings.TrimSpace(item.Enclosures[0].URL)
	}

	return raw
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	people := item.Authors
	if len(people) == 0 && item.Author != nil {
		people = []*gofeed.Person{item.Author}
	}

	for _, person := range people {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(person.Email); email != "" {
			return email
		}
	}

	return ""
}
