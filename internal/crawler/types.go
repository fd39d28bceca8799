package crawler

import (
	"context"
	"time"

	"sjsage522/inventorywatch/internal/inventory"
)

// Default crawl policy
const (
	DefaultMaxPages          = 60
	DefaultProbePages        = 20
	DefaultScrollSteps       = 10
	DefaultScrollPause       = 600 * time.Millisecond
	DefaultLoadMoreClicks    = 5
	DefaultClickPause        = 1200 * time.Millisecond
	DefaultDetailMinSegments = 1
	DefaultPageTimeout       = 45 * time.Second
	DefaultSettleGrace       = 550 * time.Millisecond
	DefaultWorkers           = 1
)

// DefaultLoadMoreLabels are matched case-insensitively as substrings of
// button and link text
var DefaultLoadMoreLabels = []string{"load more", "show more", "more results", "next", "›", "»"}

// Discovery is the result of walking the listing pages
type Discovery struct {
	// Pages lists the listing pages that loaded, in visit order
	Pages []string
	// Failed lists the listing pages that could not be loaded
	Failed []string
	// VehicleURLs is the sorted union of candidate detail page URLs
	VehicleURLs []string
}

// ListingDiscoverer finds candidate vehicle detail pages
type ListingDiscoverer interface {
	Discover(ctx context.Context) (*Discovery, error)
}

// RecordCrawler turns detail page URLs into vehicle records
type RecordCrawler interface {
	CrawlAll(ctx context.Context, urls []string) []inventory.Record
}

// DiscoverConfig tunes listing discovery. Zero values take the defaults.
type DiscoverConfig struct {
	RootURL           string
	InventoryPath     string
	MaxPages          int
	ProbePages        int
	ScrollSteps       int
	ScrollPause       time.Duration
	LoadMoreClicks    int
	LoadMoreLabels    []string
	ClickPause        time.Duration
	DetailMinSegments int
	PageTimeout       time.Duration
}

func (c DiscoverConfig) withDefaults() DiscoverConfig {
	if c.InventoryPath == "" {
		c.InventoryPath = "/inventory/"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.ProbePages <= 0 {
		c.ProbePages = DefaultProbePages
	}
	if c.ScrollSteps <= 0 {
		c.ScrollSteps = DefaultScrollSteps
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = DefaultScrollPause
	}
	if c.LoadMoreClicks <= 0 {
		c.LoadMoreClicks = DefaultLoadMoreClicks
	}
	if len(c.LoadMoreLabels) == 0 {
		c.LoadMoreLabels = DefaultLoadMoreLabels
	}
	if c.ClickPause <= 0 {
		c.ClickPause = DefaultClickPause
	}
	if c.DetailMinSegments <= 0 {
		c.DetailMinSegments = DefaultDetailMinSegments
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	return c
}

// DetailConfig tunes the detail crawl. Zero values take the defaults.
type DetailConfig struct {
	InventoryPath string
	PageTimeout   time.Duration
	SettleGrace   time.Duration
	Workers       int
	// Date stamps every record of the run
	Date string
}

func (c DetailConfig) withDefaults() DetailConfig {
	if c.InventoryPath == "" {
		c.InventoryPath = "/inventory/"
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	if c.SettleGrace <= 0 {
		c.SettleGrace = DefaultSettleGrace
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	return c
}

// sleepCtx waits for d or until ctx ends
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
