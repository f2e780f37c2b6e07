package feed

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Registry holds the feed sources grouped by category. Sources keep the
// order in which they were registered. It is read-only after construction.
type Registry struct {
	sources map[Category][]Source
}

type registryFile struct {
	Tech          []Source `yaml:"tech"`
	Cybersecurity []Source `yaml:"cybersecurity"`
}

func DefaultSources() []Source {
	return []Source{
		{URL: "https://techcrunch.com/feed/", Name: "TechCrunch", Category: Tech},
		{URL: "https://www.theverge.com/rss/index.xml", Name: "The Verge", Category: Tech},
		{URL: "https://www.wired.com/feed/rss", Name: "Wired", Category: Tech},
		{URL: "https://feeds.arstechnica.com/arstechnica/index", Name: "Ars Technica", Category: Tech},
		{URL: "https://feeds.feedburner.com/TheHackersNews", Name: "The Hacker News", Category: Cybersecurity},
		{URL: "https://www.bleepingcomputer.com/feed/", Name: "Bleeping Computer", Category: Cybersecurity},
		{URL: "https://krebsonsecurity.com/feed/", Name: "Krebs on Security", Category: Cybersecurity},
		{URL: "https://threatpost.com/feed/", Name: "Threatpost", Category: Cybersecurity},
		{URL: "https://www.darkreading.com/rss.xml", Name: "Dark Reading", Category: Cybersecurity},
	}
}

func NewRegistry(sources []Source) (*Registry, error) {
	r := &Registry{
		sources: make(map[Category][]Source, len(Categories)),
	}

	seen := make(map[Category]map[string]bool, len(Categories))
	for i, source := range sources {
		if err := validateSource(source); err != nil {
			return nil, fmt.Errorf("invalid source at index %d: %w", i, err)
		}
		if seen[source.Category] == nil {
			seen[source.Category] = make(map[string]bool)
		}
		if seen[source.Category][source.URL] {
			return nil, fmt.Errorf("duplicate source URL in %s: %s", source.Category, source.URL)
		}
		seen[source.Category][source.URL] = true
		r.sources[source.Category] = append(r.sources[source.Category], source)
	}

	return r, nil
}

// LoadRegistry reads sources from a YAML file. An empty path yields the
// built-in sources.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(DefaultSources())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	var sources []Source
	for _, source := range file.Tech {
		source.Category = Tech
		sources = append(sources, source)
	}
	for _, source := range file.Cybersecurity {
		source.Category = Cybersecurity
		sources = append(sources, source)
	}

	registry, err := NewRegistry(sources)
	if err != nil {
		return nil, fmt.Errorf("invalid registry %s: %w", path, err)
	}

	slog.Debug("Feed registry loaded", "file", path, "tech", len(file.Tech), "cybersecurity", len(file.Cybersecurity))

	return registry, nil
}

// Sources resolves a selector into its sources. All is the union of every
// category in registry order.
func (r *Registry) Sources(sel Selector) []Source {
	if sel == SelectAll {
		var all []Source
		for _, category := range Categories {
			all = append(all, r.sources[category]...)
		}
		return all
	}

	sources := r.sources[Category(sel)]
	sourcesCopy := make([]Source, len(sources))
	copy(sourcesCopy, sources)
	return sourcesCopy
}

func (r *Registry) Count() int {
	count := 0
	for _, sources := range r.sources {
		count += len(sources)
	}
	return count
}

func validateSource(source Source) error {
	requiredFields := map[string]string{
		"source name": source.Name,
		"source URL":  source.URL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if source.Category != Tech && source.Category != Cybersecurity {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, source.Category)
	}

	u, err := url.Parse(source.URL)
	if err != nil {
		return fmt.Errorf("invalid source URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source URL must be absolute http(s): %s", source.URL)
	}

	return nil
}
