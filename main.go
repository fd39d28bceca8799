package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sjsage522/inventorywatch/config"
	"sjsage522/inventorywatch/internal"
	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/internal/crawler"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"
	"sjsage522/inventorywatch/services/cache"
	"sjsage522/inventorywatch/services/publisher"
	"sjsage522/inventorywatch/services/report"
	"sjsage522/inventorywatch/services/store"
	"sjsage522/inventorywatch/services/worker"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	// Set up signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadConfig()

	cmd := &cobra.Command{
		Use:           "inventorywatch",
		Short:         "inventorywatch snapshots a dealer's inventory and reports what changed since the last run.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.OutputDir, "out-dir", cfg.OutputDir, "Directory holding snapshots and reports.")
	cmd.Flags().DurationVar(&cfg.CrawlInterval, "interval", cfg.CrawlInterval, "Repeat runs at this interval; 0 runs once.")
	cmd.Flags().StringVar(&cfg.Mode, "mode", cfg.Mode, "Browser mode: chrome or static.")
	cmd.Flags().StringVar(&cfg.InventoryURL, "url", cfg.InventoryURL, "Root inventory listing URL.")
	cmd.Flags().BoolVar(&cfg.ReportTables, "tables", cfg.ReportTables, "Print added, removed and price change tables after each run.")
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	log := logger.Default
	ctx := cmd.Context()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("url", cfg.InventoryURL).
		Str("mode", cfg.Mode).
		Dur("crawl_interval", cfg.CrawlInterval).
		Msg("Starting application")

	// Initialize services
	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	discoverer := crawler.NewDiscoverer(deps.Session, crawler.DiscoverConfig{
		RootURL:           cfg.InventoryURL,
		InventoryPath:     cfg.InventoryPath,
		MaxPages:          cfg.MaxPages,
		ProbePages:        cfg.ProbePages,
		ScrollSteps:       cfg.ScrollSteps,
		ScrollPause:       cfg.ScrollPause,
		LoadMoreClicks:    cfg.LoadMoreClicks,
		DetailMinSegments: cfg.DetailMinSegments,
		PageTimeout:       cfg.PageTimeout,
	})
	details := crawler.NewDetailCrawler(deps.Session, crawler.DetailConfig{
		InventoryPath: cfg.InventoryPath,
		PageTimeout:   cfg.PageTimeout,
		SettleGrace:   cfg.SettleGrace,
		Workers:       cfg.Workers,
	})

	opts := []worker.Option{worker.WithInterval(cfg.CrawlInterval)}
	if deps.Publisher != nil {
		opts = append(opts, worker.WithPublisher(deps.Publisher))
	}
	if cfg.ReportTables {
		opts = append(opts, worker.WithReport(cmd.OutOrStdout()))
	}
	w := worker.NewWorker(discoverer, details, deps.Store, opts...)

	err = w.Start(ctx, func(s report.Summary) {
		fmt.Fprintln(cmd.OutOrStdout(), s.Line())
	})
	if err != nil && ctx.Err() != nil {
		log.Info().Msg("Shutting down gracefully...")
		return nil
	}
	return err
}

// initializeServices builds the store, the browser session and the
// optional cache and publisher. Only the first two are fatal when they
// cannot be set up.
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	log := logger.Default
	deps := &internal.Dependencies{}

	st, err := store.NewCSVStore(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	deps.Store = st

	// Initialize cache service
	if cfg.CachingEnabled() {
		mc := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := mc.Ping(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unreachable, page cache disabled")
		} else {
			deps.Cache = mc
			log.Info().Str("addr", cfg.MemcacheAddr).Msg("Connected to Memcache")
		}
	}

	// Initialize publisher
	if cfg.PublishingEnabled() {
		rp := publisher.NewRedisPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStreamPrefix, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rp.Ping(pingCtx)
		cancel()
		if err != nil {
			rp.Close()
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable, delta publishing disabled")
		} else {
			deps.Publisher = rp
			log.Info().
				Str("addr", cfg.RedisAddr).
				Int("db", cfg.RedisDB).
				Str("stream", cfg.RedisStreamPrefix).
				Msg("Connected to Redis")
		}
	}

	switch cfg.Mode {
	case config.ModeStatic:
		deps.Session = browser.NewStaticSession(deps.Cache, cfg.CacheTTL)
	default:
		session, err := browser.NewChromeSession(ctx, browser.ChromeOptions{
			RemoteURL: cfg.ChromeRemoteURL,
			Headless:  cfg.ChromeHeadless,
			UserAgent: cfg.UserAgent,
		})
		if err != nil {
			deps.Close()
			return nil, errors.NewSetup("chrome", "failed to start browser", err)
		}
		deps.Session = session
	}

	return deps, nil
}
