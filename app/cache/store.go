package cache

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/metrics"
)

const DefaultTTL = 8 * time.Hour

// Entry is the merged result for one selector. Entries are replaced whole.
type Entry struct {
	Articles  []feed.Article
	WrittenAt time.Time
}

type EntryStats struct {
	AgeMinutes int64 `json:"age_minutes"`
	ItemCount  int   `json:"count"`
}

// Store keeps the latest merged result per selector. Expired entries are
// dropped lazily by the read that finds them.
type Store struct {
	entries map[feed.Selector]Entry
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewStore creates a store. A nil clock means time.Now.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}

	return &Store{
		entries: make(map[feed.Selector]Entry),
		ttl:     ttl,
		now:     now,
	}
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the stored articles while the entry is younger than the TTL.
// An expired entry is evicted and reported as a miss.
func (s *Store) Get(sel feed.Selector) ([]feed.Article, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sel]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(sel.String(), "miss").Inc()
		return nil, false
	}

	if s.now().Sub(entry.WrittenAt) >= s.ttl {
		delete(s.entries, sel)
		metrics.CacheLookupsTotal.WithLabelValues(sel.String(), "miss").Inc()
		metrics.CacheEvictionsTotal.WithLabelValues(sel.String(), "expired").Inc()
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues(sel.String(), "hit").Inc()

	return slices.Clone(entry.Articles), true
}

// Put overwrites the entry for sel and stamps it with the current time.
func (s *Store) Put(sel feed.Selector, articles []feed.Article) {
	stored := slices.Clone(articles)
	if stored == nil {
		stored = []feed.Article{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[sel] = Entry{
		Articles:  stored,
		WrittenAt: s.now(),
	}
}

func (s *Store) Invalidate(sel feed.Selector) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sel]; ok {
		delete(s.entries, sel)
		metrics.CacheEvictionsTotal.WithLabelValues(sel.String(), "invalidated").Inc()
	}
}

func (s *Store) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sel := range s.entries {
		metrics.CacheEvictionsTotal.WithLabelValues(sel.String(), "invalidated").Inc()
	}
	clear(s.entries)
}

// Stats reports the age and size of every stored entry, expired or not.
// It never modifies the store.
func (s *Store) Stats() map[string]EntryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := make(map[string]EntryStats, len(s.entries))
	for sel, entry := range s.entries {
		stats[sel.String()] = EntryStats{
			AgeMinutes: int64(math.Round(now.Sub(entry.WrittenAt).Minutes())),
			ItemCount:  len(entry.Articles),
		}
	}

	return stats
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
