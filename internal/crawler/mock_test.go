package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sjsage522/inventorywatch/internal/browser"
)

// mockPage is the canned state of one URL
type mockPage struct {
	anchors   []browser.Anchor
	html      string
	text      string
	responses []browser.Response
	clickable int
	// clickTo is the URL a successful click leads to, replacing the page
	clickTo string
	err     error
}

// mockSite is shared by every tab of a mock browser
type mockSite struct {
	mu       sync.Mutex
	pages    map[string]*mockPage
	fallback *mockPage
	visits   []string
	scrolls  int
	clicks   int
	tabs     int
}

func newMockSite() *mockSite {
	return &mockSite{pages: make(map[string]*mockPage)}
}

func (m *mockSite) page(url string) *mockPage {
	if p, ok := m.pages[url]; ok {
		return p
	}
	return m.fallback
}

func (m *mockSite) Visits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.visits...)
}

// mockSession implements browser.Opener over a mockSite
type mockSession struct {
	site      *mockSite
	current   *mockPage
	clicked   int
	listeners []func(browser.Response)
	closed    bool
}

var _ browser.Opener = (*mockSession)(nil)

func newMockSession(site *mockSite) *mockSession {
	return &mockSession{site: site}
}

func (s *mockSession) NewTab(ctx context.Context) (browser.Session, error) {
	s.site.mu.Lock()
	s.site.tabs++
	s.site.mu.Unlock()
	return newMockSession(s.site), nil
}

func (s *mockSession) Navigate(ctx context.Context, url string, _ browser.WaitPolicy) error {
	s.site.mu.Lock()
	s.site.visits = append(s.site.visits, url)
	p := s.site.page(url)
	s.site.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("navigate %s: 404", url)
	}
	if p.err != nil {
		return p.err
	}
	s.current = p
	s.clicked = 0
	for _, r := range p.responses {
		for _, fn := range s.listeners {
			fn(r)
		}
	}
	return nil
}

func (s *mockSession) Anchors(ctx context.Context) ([]browser.Anchor, error) {
	if s.current == nil {
		return nil, nil
	}
	return s.current.anchors, nil
}

func (s *mockSession) Scroll(ctx context.Context) error {
	s.site.mu.Lock()
	s.site.scrolls++
	s.site.mu.Unlock()
	return nil
}

func (s *mockSession) ClickByText(ctx context.Context, labels []string) (bool, error) {
	s.site.mu.Lock()
	s.site.clicks++
	s.site.mu.Unlock()
	if s.current == nil || s.clicked >= s.current.clickable {
		return false, nil
	}
	if s.current.clickTo != "" {
		s.site.mu.Lock()
		next := s.site.page(s.current.clickTo)
		s.site.mu.Unlock()
		if next == nil {
			return false, fmt.Errorf("click led to %s: 404", s.current.clickTo)
		}
		s.current = next
		s.clicked = 0
		return true, nil
	}
	s.clicked++
	return true, nil
}

func (s *mockSession) Content(ctx context.Context) (string, error) {
	if s.current == nil {
		return "", nil
	}
	return s.current.html, nil
}

func (s *mockSession) Text(ctx context.Context) (string, error) {
	if s.current == nil {
		return "", nil
	}
	return s.current.text, nil
}

func (s *mockSession) OnResponse(fn func(browser.Response)) {
	s.listeners = append(s.listeners, fn)
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}

func noPause(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func jsonResponse(body string) browser.Response {
	return browser.Response{URL: "https://dealer.example/api/vehicle", Status: 200, MIMEType: "application/json", Body: []byte(body)}
}
