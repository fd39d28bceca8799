package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"sjsage522/inventorywatch/logger"
	"sjsage522/inventorywatch/pkg/errors"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	defaultIdleQuiet   = 500 * time.Millisecond
	defaultIdleTimeout = 15 * time.Second
	defaultProbe       = 30 * time.Second
	idlePoll           = 100 * time.Millisecond

	anchorsJS = `Array.from(document.querySelectorAll('a[href]')).map(a => ({
	href: a.href,
	text: (a.innerText || a.textContent || '').trim(),
	rel: a.getAttribute('rel') || '',
	aria: a.getAttribute('aria-label') || ''
}))`

	scrollJS = `window.scrollBy(0, window.innerHeight || 800); true`

	clickJS = `(function(labels) {
	const els = Array.from(document.querySelectorAll('button, a, [role="button"], input[type="button"], input[type="submit"]'));
	for (const el of els) {
		const t = String(el.innerText || el.value || el.getAttribute('aria-label') || '').trim().toLowerCase();
		if (!t) continue;
		if (labels.some(l => t.includes(l))) { el.click(); return true; }
	}
	return false;
})(%s)`

	textJS = `document.body ? document.body.innerText : ''`
)

// ChromeOptions configures a ChromeSession
type ChromeOptions struct {
	// RemoteURL attaches to a running browser's DevTools endpoint instead of
	// launching one
	RemoteURL   string
	Headless    bool
	UserAgent   string
	IdleQuiet   time.Duration
	IdleTimeout time.Duration
}

// ChromeSession is a Session backed by a Chrome tab driven over the DevTools
// protocol
type ChromeSession struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        ChromeOptions
	log         *logger.Logger

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	pending      map[network.RequestID]*network.Response
	lastActivity time.Time
	listeners    []func(Response)
}

var _ Opener = (*ChromeSession)(nil)

// NewChromeSession starts (or attaches to) a browser and opens its first tab.
// The browser must answer a navigation to about:blank before this returns.
func NewChromeSession(ctx context.Context, opts ChromeOptions) (*ChromeSession, error) {
	if opts.IdleQuiet <= 0 {
		opts.IdleQuiet = defaultIdleQuiet
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.WindowSize(1366, 900),
		)
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocOpts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := newChromeTab(tabCtx, tabCancel, opts)
	s.allocCancel = allocCancel

	// The first Run allocates the browser, so it must not carry a timeout
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	probeCtx, probeCancel := context.WithTimeout(tabCtx, defaultProbe)
	defer probeCancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser failed startup probe: %w", err)
	}

	if err := s.attach(); err != nil {
		s.Close()
		return nil, err
	}

	s.log.Info().
		Bool("remote", opts.RemoteURL != "").
		Bool("headless", opts.Headless).
		Msg("Browser session started")
	return s, nil
}

func newChromeTab(ctx context.Context, cancel context.CancelFunc, opts ChromeOptions) *ChromeSession {
	return &ChromeSession{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		log:      logger.ForBrowser("chrome"),
		inflight: make(map[network.RequestID]struct{}),
		pending:  make(map[network.RequestID]*network.Response),
	}
}

// attach subscribes to network events on the tab
func (s *ChromeSession) attach() error {
	chromedp.ListenTarget(s.ctx, s.onEvent)
	if err := chromedp.Run(s.ctx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}
	return nil
}

// NewTab opens another tab in the same browser. Its listeners are separate.
func (s *ChromeSession) NewTab(ctx context.Context) (Session, error) {
	tabCtx, tabCancel := chromedp.NewContext(s.ctx)
	tab := newChromeTab(tabCtx, tabCancel, s.opts)

	if err := ctx.Err(); err != nil {
		tabCancel()
		return nil, err
	}
	// As with the browser, the target is bound to the context of the first Run
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	if err := tab.attach(); err != nil {
		tabCancel()
		return nil, err
	}
	return tab, nil
}

// onEvent runs on chromedp's event goroutine and must not block
func (s *ChromeSession) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mu.Lock()
		s.inflight[e.RequestID] = struct{}{}
		s.lastActivity = time.Now()
		s.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Response != nil && IsJSONType(e.Response.MimeType) {
			s.mu.Lock()
			s.pending[e.RequestID] = e.Response
			s.mu.Unlock()
		}
	case *network.EventLoadingFinished:
		s.finish(e.RequestID, true)
	case *network.EventLoadingFailed:
		s.finish(e.RequestID, false)
	}
}

func (s *ChromeSession) finish(id network.RequestID, ok bool) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.lastActivity = time.Now()
	resp := s.pending[id]
	delete(s.pending, id)
	listeners := append([]func(Response){}, s.listeners...)
	s.mu.Unlock()

	if !ok || resp == nil || len(listeners) == 0 {
		return
	}
	go s.deliver(id, resp, listeners)
}

// deliver reads a finished response body and hands it to the listeners
func (s *ChromeSession) deliver(id network.RequestID, resp *network.Response, listeners []func(Response)) {
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(s.ctx, c.Target))
	r, err := toResponse(resp, body, err)
	if err != nil {
		s.log.Debug().Err(err).Msg("Background response skipped")
		return
	}
	for _, fn := range listeners {
		fn(r)
	}
}

// toResponse pairs a finished network response with the result of its
// body fetch
func toResponse(resp *network.Response, body []byte, err error) (Response, error) {
	if err != nil {
		return Response{}, errors.NewBackground("chrome", "response body unavailable for "+resp.URL, err)
	}
	return Response{
		URL:      resp.URL,
		Status:   int(resp.Status),
		MIMEType: resp.MimeType,
		Body:     body,
	}, nil
}

// bind derives a context from the tab that also ends when ctx does
func (s *ChromeSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(s.ctx)
	if dl, ok := ctx.Deadline(); ok {
		var dlCancel context.CancelFunc
		runCtx, dlCancel = context.WithDeadline(runCtx, dl)
		prev := cancel
		cancel = func() { dlCancel(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url in the tab
func (s *ChromeSession) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	runCtx, done := s.bind(ctx)
	defer done()

	s.mu.Lock()
	s.inflight = make(map[network.RequestID]struct{})
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if wait == WaitNetworkIdle {
		return s.waitIdle(runCtx)
	}
	return nil
}

// waitIdle blocks until no request has been in flight for IdleQuiet. Pages
// that never go quiet are accepted after IdleTimeout.
func (s *ChromeSession) waitIdle(ctx context.Context) error {
	deadline := time.Now().Add(s.opts.IdleTimeout)
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		idle := len(s.inflight) == 0 && time.Since(s.lastActivity) >= s.opts.IdleQuiet
		s.mu.Unlock()
		if idle {
			return nil
		}
		if time.Now().After(deadline) {
			s.log.Debug().Dur("timeout", s.opts.IdleTimeout).Msg("Network never went idle, continuing")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Anchors lists the links of the current page
func (s *ChromeSession) Anchors(ctx context.Context) ([]Anchor, error) {
	runCtx, done := s.bind(ctx)
	defer done()

	var anchors []Anchor
	if err := chromedp.Run(runCtx, chromedp.Evaluate(anchorsJS, &anchors)); err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	return anchors, nil
}

// Scroll moves the viewport one screen down
func (s *ChromeSession) Scroll(ctx context.Context) error {
	runCtx, done := s.bind(ctx)
	defer done()

	var ok bool
	return chromedp.Run(runCtx, chromedp.Evaluate(scrollJS, &ok))
}

// ClickByText clicks the first button or link whose text contains a label
func (s *ChromeSession) ClickByText(ctx context.Context, labels []string) (bool, error) {
	lower := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			lower = append(lower, l)
		}
	}
	if len(lower) == 0 {
		return false, nil
	}
	encoded, err := json.Marshal(lower)
	if err != nil {
		return false, err
	}

	runCtx, done := s.bind(ctx)
	defer done()

	var clicked bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(fmt.Sprintf(clickJS, encoded), &clicked)); err != nil {
		return false, fmt.Errorf("failed to click: %w", err)
	}
	return clicked, nil
}

// Content returns the rendered markup of the page
func (s *ChromeSession) Content(ctx context.Context) (string, error) {
	runCtx, done := s.bind(ctx)
	defer done()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return html, nil
}

// Text returns the rendered body text of the page
func (s *ChromeSession) Text(ctx context.Context) (string, error) {
	runCtx, done := s.bind(ctx)
	defer done()

	var text string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(textJS, &text)); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return text, nil
}

// OnResponse registers a background response callback
func (s *ChromeSession) OnResponse(fn func(Response)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Close closes the tab, and the browser when this session started it
func (s *ChromeSession) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}
