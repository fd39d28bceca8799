package crawler

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"sjsage522/inventorywatch/helpers"
	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"
)

// Link text that marks a "next page" control
var paginationGlyphs = map[string]bool{
	"›": true, "»": true, ">": true, "→": true, ">>": true,
	"next": true, "next page": true, "next »": true, "next ›": true,
}

// Discoverer walks the listing pages of an inventory site breadth first and
// harvests vehicle detail URLs. The number of visited pages never exceeds
// MaxPages.
type Discoverer struct {
	session browser.Session
	cfg     DiscoverConfig
	prefix  string
	log     *logger.Logger
	pause   func(ctx context.Context, d time.Duration) error
}

var _ ListingDiscoverer = (*Discoverer)(nil)

// NewDiscoverer creates a discoverer driving session
func NewDiscoverer(session browser.Session, cfg DiscoverConfig) *Discoverer {
	cfg = cfg.withDefaults()
	return &Discoverer{
		session: session,
		cfg:     cfg,
		prefix:  helpers.NormalizePrefix(cfg.InventoryPath),
		log:     logger.ForCrawler("discovery"),
		pause:   sleepCtx,
	}
}

// DiscoverListingPages returns only the visited listing page sequence
func (d *Discoverer) DiscoverListingPages(ctx context.Context) ([]string, error) {
	res, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return res.Pages, nil
}

// Discover walks the listing pages starting at the root inventory URL.
// Pages that fail to load contribute no links. Only cancellation of ctx
// ends the walk with an error.
func (d *Discoverer) Discover(ctx context.Context) (*Discovery, error) {
	root := helpers.StripFragment(strings.TrimSpace(d.cfg.RootURL))
	if _, err := url.Parse(root); err != nil || root == "" {
		return nil, errors.NewConfiguration("invalid root inventory URL", err)
	}

	res := &Discovery{}
	vehicles := make(map[string]struct{})
	queued := map[string]struct{}{root: {}}
	queue := []string{root}
	probes := probeURLs(root, d.cfg.ProbePages)
	visited := 0

	for len(queue) > 0 && visited < d.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := queue[0]
		queue = queue[1:]
		visited++

		anchors, err := d.visit(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.log.Warn().Err(err).Str("url", page).Msg("Listing page failed, skipping")
			res.Failed = append(res.Failed, page)
			continue
		}
		res.Pages = append(res.Pages, page)

		found := 0
		for _, a := range anchors {
			if v, ok := d.vehicleURL(root, a.Href); ok {
				if _, dup := vehicles[v]; !dup {
					vehicles[v] = struct{}{}
					found++
				}
			}
		}

		links := append(paginationLinks(anchors), probes...)
		enqueued := 0
		for _, link := range links {
			link = helpers.StripFragment(link)
			if link == "" || !helpers.SameHost(root, link) {
				continue
			}
			if _, ok := queued[link]; ok {
				continue
			}
			queued[link] = struct{}{}
			queue = append(queue, link)
			enqueued++
		}

		d.log.Debug().
			Str("url", page).
			Int("anchors", len(anchors)).
			Int("new_vehicles", found).
			Int("enqueued", enqueued).
			Msg("Listing page visited")
	}

	if len(queue) > 0 {
		d.log.Info().
			Int("max_pages", d.cfg.MaxPages).
			Int("unvisited", len(queue)).
			Msg("Page cap reached, stopping discovery")
	}

	res.VehicleURLs = make([]string, 0, len(vehicles))
	for v := range vehicles {
		res.VehicleURLs = append(res.VehicleURLs, v)
	}
	sort.Strings(res.VehicleURLs)

	d.log.Info().
		Int("pages", len(res.Pages)).
		Int("failed", len(res.Failed)).
		Int("vehicles", len(res.VehicleURLs)).
		Msg("Discovery finished")
	return res, nil
}

// visit renders one listing page, expands lazy content and returns its
// anchors. Anchors are collected before the first load-more click and after
// every click, since a click on a next link may replace the page.
func (d *Discoverer) visit(ctx context.Context, page string) ([]browser.Anchor, error) {
	pctx, cancel := context.WithTimeout(ctx, d.cfg.PageTimeout)
	defer cancel()

	if err := d.session.Navigate(pctx, page, browser.WaitNetworkIdle); err != nil {
		return nil, errors.NewNetwork("discovery", "navigation failed", err)
	}

	for i := 0; i < d.cfg.ScrollSteps; i++ {
		if err := d.session.Scroll(pctx); err != nil {
			d.log.Debug().Err(err).Str("url", page).Msg("Scroll failed")
			break
		}
		if err := d.pause(pctx, d.cfg.ScrollPause); err != nil {
			return nil, errors.NewNetwork("discovery", "page timed out while scrolling", err)
		}
	}

	anchors, err := d.session.Anchors(pctx)
	if err != nil {
		return nil, errors.NewNetwork("discovery", "failed to list anchors", err)
	}
	seen := make(map[browser.Anchor]struct{}, len(anchors))
	collected := make([]browser.Anchor, 0, len(anchors))
	harvest := func(more []browser.Anchor) {
		for _, a := range more {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			collected = append(collected, a)
		}
	}
	harvest(anchors)

	for i := 0; i < d.cfg.LoadMoreClicks; i++ {
		clicked, err := d.session.ClickByText(pctx, d.cfg.LoadMoreLabels)
		if err != nil {
			d.log.Debug().Err(err).Str("url", page).Msg("Load more click failed")
			break
		}
		if !clicked {
			break
		}
		if err := d.pause(pctx, d.cfg.ClickPause); err != nil {
			d.log.Debug().Err(err).Str("url", page).Msg("Page timed out after click")
			break
		}
		more, err := d.session.Anchors(pctx)
		if err != nil {
			d.log.Debug().Err(err).Str("url", page).Msg("Anchors unavailable after click")
			break
		}
		harvest(more)
	}

	return collected, nil
}

// vehicleURL reports whether href is a candidate detail page and returns it
// without query and fragment
func (d *Discoverer) vehicleURL(root, href string) (string, bool) {
	if href == "" || !helpers.SameHost(root, href) {
		return "", false
	}
	parts, ok := helpers.InventoryTail(href, d.prefix)
	if !ok || len(parts) < d.cfg.DetailMinSegments {
		return "", false
	}
	if isPaginationPath(parts) {
		return "", false
	}
	return helpers.StripQuery(href), true
}

// isPaginationPath matches inventory-relative paths of the form page/N
func isPaginationPath(parts []string) bool {
	if len(parts) != 2 || !strings.EqualFold(parts[0], "page") {
		return false
	}
	_, err := strconv.Atoi(parts[1])
	return err == nil
}

// paginationLinks returns the anchors that look like links to further
// listing pages: semantic next links and purely numeric page links
func paginationLinks(anchors []browser.Anchor) []string {
	var out []string
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		if isNextLink(a) || isNumeric(strings.TrimSpace(a.Text)) {
			out = append(out, a.Href)
		}
	}
	return out
}

func isNextLink(a browser.Anchor) bool {
	for _, rel := range strings.Fields(strings.ToLower(a.Rel)) {
		if rel == "next" {
			return true
		}
	}
	if strings.Contains(strings.ToLower(a.AriaLabel), "next") {
		return true
	}
	return paginationGlyphs[strings.ToLower(strings.Join(strings.Fields(a.Text), " "))]
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// probeURLs synthesizes ?page=N and /page/N/ variants of root for N in 2..max
func probeURLs(root string, max int) []string {
	u, err := url.Parse(root)
	if err != nil {
		return nil
	}
	var out []string
	for n := 2; n <= max; n++ {
		q := *u
		values := q.Query()
		values.Set("page", strconv.Itoa(n))
		q.RawQuery = values.Encode()
		out = append(out, q.String())
	}
	for n := 2; n <= max; n++ {
		p := *u
		p.RawQuery = ""
		p.Path = strings.TrimRight(u.Path, "/") + "/page/" + strconv.Itoa(n) + "/"
		p.RawPath = ""
		out = append(out, p.String())
	}
	return out
}
