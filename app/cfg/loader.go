package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath    string `long:"db-path" env:"DB_PATH" description:"SQLite file for the article archive (empty disables persistence)"`
	FeedsFile string `long:"feeds-file" env:"FEEDS_FILE" description:"YAML file with feed sources (empty uses the built-in registry)"`

	// Application configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	AppURL       string `long:"app-url" env:"APP_URL" description:"Origin allowed by CORS (empty allows all origins)"`
	WorkerCount  int    `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for persistence tasks"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key protecting the cache endpoints (optional)"`

	TrustedProxies []string `long:"trusted-proxy" env:"TRUSTED_PROXIES" env-delim:"," description:"Proxy IPs or CIDRs whose X-Forwarded-For is honored (empty trusts none)"`

	// Pipeline configuration
	CacheTTL         time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"8h" description:"Maximum age of a cached category"`
	FetchTimeout     time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10s" description:"Timeout of a single feed retrieval"`
	FetchConcurrency int           `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"3" description:"Maximum simultaneous feed retrievals"`
	ItemsPerSource   int           `long:"items-per-source" env:"ITEMS_PER_SOURCE" default:"10" description:"Items kept from each feed per fetch"`
	MaxFeedBytes     int64         `long:"max-feed-bytes" env:"MAX_FEED_BYTES" default:"10485760" description:"Largest feed body accepted from a source"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"News Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		FeedsFile:        raw.FeedsFile,
		Port:             raw.Port,
		AppURL:           raw.AppURL,
		WorkerCount:      raw.WorkerCount,
		APIAccessKey:     raw.APIAccessKey,
		TrustedProxies:   raw.TrustedProxies,
		CacheTTL:         raw.CacheTTL,
		FetchTimeout:     raw.FetchTimeout,
		FetchConcurrency: raw.FetchConcurrency,
		ItemsPerSource:   raw.ItemsPerSource,
		MaxFeedBytes:     raw.MaxFeedBytes,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	positive := map[string]int{
		"worker count":      c.WorkerCount,
		"fetch concurrency": c.FetchConcurrency,
		"items per source":  c.ItemsPerSource,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.MaxFeedBytes <= 0 {
		return fmt.Errorf("max feed bytes must be positive")
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
