package feed

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/news-comb/app/metrics"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFetchTimeout     = 10 * time.Second
	DefaultMaxRedirects     = 3
	DefaultFetchConcurrency = 3
	DefaultItemsPerSource   = 10
	DefaultUserAgent        = "News Comb/1.0"
	DefaultMaxBytes         = 10 << 20

	breakerFailureThreshold = 5
	breakerOpenTimeout      = 5 * time.Minute
)

var ErrFeedTooLarge = errors.New("feed body too large")

type FetcherOptions struct {
	Timeout        time.Duration
	MaxRedirects   int
	Concurrency    int
	ItemsPerSource int
	UserAgent      string
	// MaxBytes bounds the response body; larger feeds fail the source.
	MaxBytes int64
}

// Fetcher retrieves and parses feeds with a bounded number of retrievals in
// flight. A failing source never affects the others.
type Fetcher struct {
	httpClient *http.Client
	parser     *Parser
	opts       FetcherOptions

	breakers map[string]*gobreaker.CircuitBreaker[[]RawItem]
	mu       sync.Mutex
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	opts.Timeout = cmp.Or(opts.Timeout, DefaultFetchTimeout)
	opts.MaxRedirects = cmp.Or(opts.MaxRedirects, DefaultMaxRedirects)
	opts.Concurrency = cmp.Or(opts.Concurrency, DefaultFetchConcurrency)
	opts.ItemsPerSource = cmp.Or(opts.ItemsPerSource, DefaultItemsPerSource)
	opts.UserAgent = cmp.Or(opts.UserAgent, DefaultUserAgent)
	opts.MaxBytes = cmp.Or(opts.MaxBytes, DefaultMaxBytes)

	maxRedirects := opts.MaxRedirects
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		parser:   NewParser(),
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]RawItem]),
	}
}

// FetchAll retrieves every source and returns one result per source in the
// order given. It waits for every retrieval to settle and never fails as a
// whole; per-source failures are reported in SourceItems.Err.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []SourceItems {
	results := make([]SourceItems, len(sources))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)

	for i, source := range sources {
		g.Go(func() error {
			results[i] = f.fetchSource(ctx, source)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

func (f *Fetcher) fetchSource(ctx context.Context, source Source) SourceItems {
	start := time.Now()

	items, err := f.breaker(source).Execute(func() ([]RawItem, error) {
		data, err := f.fetchFeed(ctx, source.URL)
		if err != nil {
			return nil, err
		}
		return f.parser.Run(data)
	})

	metrics.FeedFetchDuration.WithLabelValues(source.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		status := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			status = "rejected"
		}
		metrics.FeedFetchesTotal.WithLabelValues(source.Name, status).Inc()

		slog.Warn("Feed fetch failed",
			"source", source.Name,
			"url", source.URL,
			"status", status,
			"error", err)

		return SourceItems{Source: source, Items: []RawItem{}, Err: err}
	}

	metrics.FeedFetchesTotal.WithLabelValues(source.Name, "success").Inc()

	if len(items) > f.opts.ItemsPerSource {
		items = items[:f.opts.ItemsPerSource]
	}

	slog.Debug("Feed fetched",
		"source", source.Name,
		"items", len(items),
		"duration", time.Since(start))

	return SourceItems{Source: source, Items: items}
}

func (f *Fetcher) fetchFeed(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFeedTooLarge, f.opts.MaxBytes)
	}

	return data, nil
}

// breaker returns the circuit breaker for a source URL, creating it on first use.
func (f *Fetcher) breaker(source Source) *gobreaker.CircuitBreaker[[]RawItem] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[source.URL]; ok {
		return cb
	}

	sourceName := source.Name
	cb := gobreaker.NewCircuitBreaker[[]RawItem](gobreaker.Settings{
		Name:        source.URL,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("Circuit breaker state changed",
				"source", sourceName,
				"url", name,
				"from", from.String(),
				"to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(sourceName).Set(float64(to))
		},
	})
	f.breakers[source.URL] = cb

	return cb
}
