package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath    string
	FeedsFile string

	// Application configuration
	Port         string
	AppURL       string
	WorkerCount  int
	APIAccessKey string

	// Proxies allowed to set X-Forwarded-For; empty trusts none
	TrustedProxies []string

	// Pipeline configuration
	CacheTTL         time.Duration
	FetchTimeout     time.Duration
	FetchConcurrency int
	ItemsPerSource   int
	MaxFeedBytes     int64

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
