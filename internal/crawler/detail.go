package crawler

import (
	"context"
	"sync"
	"time"

	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/internal/inventory"
	"sjsage522/inventorywatch/internal/resolver"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"
)

// Re-resolution attempts when a background VIN was taken by another worker
const maxClaimAttempts = 3

// DetailCrawler visits vehicle detail pages and resolves one record per page.
// With one worker the pages are crawled strictly in input order on the main
// session; more workers each get their own tab.
type DetailCrawler struct {
	session  browser.Session
	obs      *Observations
	resolver *resolver.Resolver
	cfg      DetailConfig
	log      *logger.Logger
	pause    func(ctx context.Context, d time.Duration) error
}

var _ RecordCrawler = (*DetailCrawler)(nil)

// NewDetailCrawler creates a detail crawler. It subscribes to the session's
// background responses for the lifetime of the session.
func NewDetailCrawler(session browser.Session, cfg DetailConfig) *DetailCrawler {
	cfg = cfg.withDefaults()
	obs := NewObservations()
	session.OnResponse(obs.Observe)
	return &DetailCrawler{
		session:  session,
		obs:      obs,
		resolver: resolver.New(cfg.InventoryPath),
		cfg:      cfg,
		log:      logger.ForCrawler("detail"),
		pause:    sleepCtx,
	}
}

// SetDate changes the date stamped on records of the next crawl
func (c *DetailCrawler) SetDate(date string) {
	c.cfg.Date = date
}

// tab is one session with its own observation set
type tab struct {
	session browser.Session
	obs     *Observations
	owned   bool
}

type job struct {
	index int
	url   string
}

// CrawlAll resolves every URL and returns the records that carry a VIN,
// unique by VIN. When two pages yield the same VIN the one earlier in urls
// wins. Failing pages are logged and skipped.
func (c *DetailCrawler) CrawlAll(ctx context.Context, urls []string) []inventory.Record {
	results := make([]*inventory.Record, len(urls))
	claims := newClaimSet()

	tabs := c.openTabs(ctx, len(urls))
	defer func() {
		for _, t := range tabs {
			if t.owned {
				t.session.Close()
			}
		}
	}()

	jobs := make(chan job)
	var wg sync.WaitGroup
	for _, t := range tabs {
		wg.Add(1)
		go func(t tab) {
			defer wg.Done()
			for j := range jobs {
				rec, err := c.crawlOne(ctx, t, j.url, claims)
				if err != nil {
					c.log.Warn().Err(err).Str("url", j.url).Msg("Detail page skipped")
					continue
				}
				results[j.index] = rec
			}
		}(t)
	}

feed:
	for i, u := range urls {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- job{index: i, url: u}:
		}
	}
	close(jobs)
	wg.Wait()

	seen := make(map[string]struct{}, len(results))
	records := make([]inventory.Record, 0, len(results))
	for _, rec := range results {
		if rec == nil {
			continue
		}
		if _, dup := seen[rec.VIN]; dup {
			c.log.Debug().Str("vin", rec.VIN).Str("url", rec.URL).Msg("Duplicate VIN dropped")
			continue
		}
		seen[rec.VIN] = struct{}{}
		records = append(records, *rec)
	}

	c.log.Info().
		Int("urls", len(urls)).
		Int("records", len(records)).
		Int("workers", len(tabs)).
		Msg("Detail crawl finished")
	return records
}

// openTabs returns the main session plus up to Workers-1 extra tabs
func (c *DetailCrawler) openTabs(ctx context.Context, jobs int) []tab {
	tabs := []tab{{session: c.session, obs: c.obs}}
	want := c.cfg.Workers
	if want > jobs {
		want = jobs
	}
	opener, ok := c.session.(browser.Opener)
	if !ok || want <= 1 {
		return tabs
	}
	for len(tabs) < want {
		s, err := opener.NewTab(ctx)
		if err != nil {
			c.log.Warn().Err(err).Int("workers", len(tabs)).Msg("Could not open worker tab, continuing with fewer workers")
			break
		}
		obs := NewObservations()
		s.OnResponse(obs.Observe)
		tabs = append(tabs, tab{session: s, obs: obs, owned: true})
	}
	return tabs
}

// crawlOne loads one detail page and resolves it
func (c *DetailCrawler) crawlOne(ctx context.Context, t tab, url string, claims *claimSet) (*inventory.Record, error) {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()

	t.obs.Reset()
	if err := t.session.Navigate(pctx, url, browser.WaitNetworkIdle); err != nil {
		return nil, errors.NewNetwork("detail", "navigation failed", err)
	}
	if err := c.pause(pctx, c.cfg.SettleGrace); err != nil {
		return nil, errors.NewNetwork("detail", "page timed out while settling", err)
	}

	html, err := t.session.Content(pctx)
	if err != nil {
		return nil, errors.NewNetwork("detail", "failed to capture content", err)
	}
	text, err := t.session.Text(pctx)
	if err != nil {
		c.log.Debug().Err(err).Str("url", url).Msg("Rendered text unavailable")
		text = ""
	}

	in := resolver.Input{
		HTML:       html,
		Text:       text,
		URLHint:    url,
		Background: t.obs.Snapshot(),
		Date:       c.cfg.Date,
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		res := c.resolver.ResolveDetailed(in, claims)
		rec := res.Record
		if rec.VIN == "" {
			return nil, errors.NewExtraction("detail", "no VIN found")
		}
		if claims.Claim(rec.VIN) || res.VINSource != resolver.SourceBackground {
			c.log.Debug().
				Str("url", url).
				Str("vin", rec.VIN).
				Stringer("vin_source", res.VINSource).
				Stringer("year_source", res.YearSource).
				Stringer("make_source", res.MakeSource).
				Msg("Record resolved")
			return &rec, nil
		}
		// another worker claimed this background VIN first
	}
	return nil, errors.NewExtraction("detail", "every background VIN was claimed by other pages")
}
