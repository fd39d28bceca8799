package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/inventorywatch/pkg/errors"
)

// Browser modes
const (
	ModeChrome = "chrome"
	ModeStatic = "static"
)

// Config represents the application configuration
type Config struct {
	// Site configuration
	InventoryURL  string
	InventoryPath string
	OutputDir     string

	// Browser configuration
	Mode            string
	ChromeRemoteURL string
	ChromeHeadless  bool
	UserAgent       string

	// Crawl policy
	MaxPages          int
	ProbePages        int
	ScrollSteps       int
	ScrollPause       time.Duration
	LoadMoreClicks    int
	DetailMinSegments int
	PageTimeout       time.Duration
	SettleGrace       time.Duration
	Workers           int

	// Crawler configuration
	CrawlInterval time.Duration

	// Redis configuration, publishing is off when RedisAddr is empty
	RedisAddr            string
	RedisDB              int
	RedisStreamPrefix    string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration, caching is off when MemcacheAddr is empty
	MemcacheAddr string
	CacheTTL     time.Duration

	// Console tables after each run
	ReportTables bool

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		InventoryURL:         getEnv("INVENTORY_URL", "https://www.carboxautosales.com/inventory/"),
		InventoryPath:        getEnv("INVENTORY_PATH", "/inventory/"),
		OutputDir:            getEnv("OUTPUT_DIR", "reports"),
		Mode:                 strings.ToLower(getEnv("BROWSER_MODE", ModeChrome)),
		ChromeRemoteURL:      getEnv("CHROME_REMOTE_URL", ""),
		ChromeHeadless:       getEnvBool("CHROME_HEADLESS", true),
		UserAgent:            getEnv("USER_AGENT", ""),
		MaxPages:             getEnvInt("MAX_PAGES", 60),
		ProbePages:           getEnvInt("PROBE_PAGES", 20),
		ScrollSteps:          getEnvInt("SCROLL_STEPS", 10),
		ScrollPause:          getEnvDuration("SCROLL_PAUSE", 600*time.Millisecond),
		LoadMoreClicks:       getEnvInt("LOAD_MORE_CLICKS", 5),
		DetailMinSegments:    getEnvInt("DETAIL_MIN_SEGMENTS", 1),
		PageTimeout:          getEnvDuration("PAGE_TIMEOUT", 45*time.Second),
		SettleGrace:          getEnvDuration("SETTLE_GRACE", 550*time.Millisecond),
		Workers:              getEnvInt("DETAIL_WORKERS", 1),
		CrawlInterval:        time.Duration(getEnvInt("CRAWL_INTERVAL_SECONDS", 0)) * time.Second,
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStreamPrefix:    getEnv("REDIS_STREAM_PREFIX", "inventory"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		CacheTTL:             time.Duration(getEnvInt("CACHE_TTL_SECONDS", 600)) * time.Second,
		ReportTables:         getEnvBool("REPORT_TABLES", false),
		Environment:          getEnv("INVENTORY_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration before anything is started
func (c *Config) Validate() error {
	u, err := url.Parse(c.InventoryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewConfiguration(fmt.Sprintf("INVENTORY_URL %q must be an absolute http(s) URL", c.InventoryURL), err)
	}
	if strings.Trim(c.InventoryPath, "/ ") == "" {
		return errors.NewConfiguration("INVENTORY_PATH must not be empty", nil)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.NewConfiguration("OUTPUT_DIR must not be empty", nil)
	}
	if c.Mode != ModeChrome && c.Mode != ModeStatic {
		return errors.NewConfiguration(fmt.Sprintf("BROWSER_MODE %q must be %s or %s", c.Mode, ModeChrome, ModeStatic), nil)
	}
	positive := map[string]int{
		"MAX_PAGES":           c.MaxPages,
		"DETAIL_WORKERS":      c.Workers,
		"REDIS_STREAM_COUNT":  c.RedisStreamCount,
		"DETAIL_MIN_SEGMENTS": c.DetailMinSegments,
	}
	for name, v := range positive {
		if v < 1 {
			return errors.NewConfiguration(fmt.Sprintf("%s must be at least 1, got %d", name, v), nil)
		}
	}
	if c.ProbePages < 0 || c.ScrollSteps < 0 || c.LoadMoreClicks < 0 {
		return errors.NewConfiguration("PROBE_PAGES, SCROLL_STEPS and LOAD_MORE_CLICKS must not be negative", nil)
	}
	if c.PageTimeout <= 0 {
		return errors.NewConfiguration("PAGE_TIMEOUT must be positive", nil)
	}
	if c.CrawlInterval < 0 {
		return errors.NewConfiguration("CRAWL_INTERVAL_SECONDS must not be negative", nil)
	}
	return nil
}

// PublishingEnabled reports whether run deltas go to Redis
func (c *Config) PublishingEnabled() bool {
	return c.RedisAddr != ""
}

// CachingEnabled reports whether fetched pages go to memcache
func (c *Config) CachingEnabled() bool {
	return c.MemcacheAddr != "" && c.CacheTTL > 0
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an integer environment variable. Unparseable values
// fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvDuration retrieves a duration such as "600ms" or "45s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(getEnv(key, "")))
	if err != nil {
		return defaultValue
	}
	return v
}
