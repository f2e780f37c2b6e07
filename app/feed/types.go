package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidCategory = errors.New("invalid category")

// Category is a topic partition of feed sources. Selector additionally
// admits All, the union of every category.
type Category string

const (
	Tech          Category = "tech"
	Cybersecurity Category = "cybersecurity"
)

// Categories lists the concrete categories in registry order.
var Categories = []Category{Tech, Cybersecurity}

type Selector string

const (
	SelectTech          Selector = Selector(Tech)
	SelectCybersecurity Selector = Selector(Cybersecurity)
	SelectAll           Selector = "all"
)

func ParseSelector(s string) (Selector, error) {
	switch sel := Selector(strings.ToLower(strings.TrimSpace(s))); sel {
	case SelectTech, SelectCybersecurity, SelectAll:
		return sel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

func (s Selector) String() string {
	return string(s)
}

type Source struct {
	URL      string   `yaml:"url"`
	Name     string   `yaml:"name"`
	Category Category `yaml:"-"`
}

// RawItem is a single upstream entry as exposed by the feed. It only lives
// for the duration of one fetch.
type RawItem struct {
	Title        string
	Description  string
	Content      string
	Link         string
	EnclosureURL string
	PublishedAt  *time.Time
	Author       string
	Categories   []string
}

// SourceItems are the items retrieved from one source. Err is set when the
// retrieval failed, in which case Items is empty.
type SourceItems struct {
	Source Source
	Items  []RawItem
	Err    error
}

type Article struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	ImageURL    *string   `json:"image_url"`
	Source      string    `json:"source"`
	Category    Category  `json:"category"`
	PublishedAt time.Time `json:"published_at"`
	Author      *string   `json:"author"`
	Tags        []string  `json:"tags"`
}
