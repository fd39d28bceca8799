package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/internal/crawler"
	"sjsage522/inventorywatch/services/cache"
	"sjsage522/inventorywatch/services/publisher"
	"sjsage522/inventorywatch/services/report"
	"sjsage522/inventorywatch/services/store"
	"sjsage522/inventorywatch/services/worker"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testVehicle is one car on the test dealer's lot
type testVehicle struct {
	path  string
	title string
	vin   string
	price string
}

// dealerSite serves a two-page listing and one detail page per vehicle.
// The lot can be swapped between runs.
type dealerSite struct {
	mu  sync.Mutex
	lot []testVehicle
}

func (d *dealerSite) setLot(lot ...testVehicle) {
	d.mu.Lock()
	d.lot = lot
	d.mu.Unlock()
}

func (d *dealerSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	lot := append([]testVehicle(nil), d.lot...)
	d.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.URL.Path == "/inventory/" {
		page := r.URL.Query().Get("page")
		var links []string
		for i, v := range lot {
			// first half on page one, the rest on page two
			onFirst := i < (len(lot)+1)/2
			if (page == "" && onFirst) || (page == "2" && !onFirst) {
				links = append(links, fmt.Sprintf(`<a href="%s?ref=list">%s</a>`, v.path, v.title))
			}
		}
		if page != "" && page != "2" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<html><body><div class="results">%s</div><nav><a href="/inventory/?page=2">2</a><a href="/about/">About</a></nav></body></html>`,
			strings.Join(links, ""))
		return
	}
	for _, v := range lot {
		if r.URL.Path == v.path {
			fmt.Fprintf(w, `<html><head><title>%s | Test Motors</title></head><body><h1>%s</h1><ul><li>VIN: %s</li><li>Price $%s</li></ul></body></html>`,
				v.title, v.title, v.vin, v.price)
			return
		}
	}
	http.NotFound(w, r)
}

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	mu    sync.Mutex
	cache map[string][]byte
}

// Ensure MockCacheService implements cache.CacheService
var _ cache.CacheService = (*MockCacheService)(nil)

func (m *MockCacheService) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func newTestWorker(t *testing.T, serverURL, outDir, date string, opts ...worker.Option) *worker.Worker {
	t.Helper()
	st, err := store.NewCSVStore(outDir)
	require.NoError(t, err)

	session := browser.NewStaticSession(nil, 0)
	discoverer := crawler.NewDiscoverer(session, crawler.DiscoverConfig{
		RootURL:     serverURL + "/inventory/",
		ProbePages:  3,
		ScrollPause: time.Millisecond,
		ClickPause:  time.Millisecond,
		PageTimeout: 5 * time.Second,
	})
	details := crawler.NewDetailCrawler(session, crawler.DetailConfig{
		PageTimeout: 5 * time.Second,
		SettleGrace: time.Millisecond,
		Workers:     2,
	})
	clock := func() time.Time {
		d, _ := time.Parse(store.DateLayout, date)
		return d
	}
	return worker.NewWorker(discoverer, details, st, append(opts, worker.WithClock(clock))...)
}

var (
	civic = testVehicle{path: "/inventory/honda/civic/101/", title: "2019 Honda Civic", vin: "2HGFC2F59KH000002", price: "15,000"}
	f150  = testVehicle{path: "/inventory/ford/f-150/102/", title: "2018 Ford F-150", vin: "1FTFW1ET1EFA00001", price: "22,000"}
	soul  = testVehicle{path: "/inventory/kia/soul/103/", title: "2020 Kia Soul", vin: "KNDJ23AU1L7000001", price: "17,000"}
)

// TestIntegration runs two daily runs against a local dealer site
func TestIntegration(t *testing.T) {
	site := &dealerSite{}
	server := httptest.NewServer(site)
	defer server.Close()

	outDir := t.TempDir()
	ctx := context.Background()

	// Day one: civic and f-150
	site.setLot(civic, f150)
	summary, err := newTestWorker(t, server.URL, outDir, "2024-05-01").RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.Summary{Date: "2024-05-01", Pages: 2, UniqueVINs: 2, PriceChanges: 0}, summary)

	data, err := os.ReadFile(filepath.Join(outDir, "inventory_2024-05-01.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024-05-01,2019,HONDA,CIVIC,2HGFC2F59KH000002,15000,"+server.URL+civic.path)

	// Day two: civic drops 500, f-150 sold, soul arrives
	cheaper := civic
	cheaper.price = "14,500"
	site.setLot(cheaper, soul)

	var tables strings.Builder
	summary, err = newTestWorker(t, server.URL, outDir, "2024-05-02", worker.WithReport(&tables)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pages scraped: 2, unique VINs: 2, price changes: 1", summary.Line())

	data, err = os.ReadFile(filepath.Join(outDir, "price_changes_2024-05-02.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2HGFC2F59KH000002,2019,HONDA,CIVIC,15000,14500,-500,")

	data, err = os.ReadFile(filepath.Join(outDir, "delta_2024-05-02.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "KNDJ23AU1L7000001,17000,"+server.URL+soul.path+",added")
	assert.Contains(t, string(data), "1FTFW1ET1EFA00001,22000,"+server.URL+f150.path+",removed")

	data, err = os.ReadFile(filepath.Join(outDir, "removed_by_group_2024-05-02.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2018,FORD,F-150,1,1FTFW1ET1EFA00001")

	assert.Contains(t, tables.String(), "-500")
}

func TestIntegrationStaticSessionUsesCache(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `<html><body><a href="/inventory/a/b/1/">A</a></body></html>`)
	}))
	defer server.Close()

	mockCache := &MockCacheService{cache: make(map[string][]byte)}
	session := browser.NewStaticSession(mockCache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, session.Navigate(ctx, server.URL+"/inventory/", browser.WaitLoad))
	}
	assert.Equal(t, 1, hits)

	anchors, err := session.Anchors(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, server.URL+"/inventory/a/b/1/", anchors[0].Href)
}

// TestIntegrationPublishesToRedis publishes a run's delta to Redis streams
func TestIntegrationPublishesToRedis(t *testing.T) {
	// Skip this test if running in CI or without Redis
	if os.Getenv("CI") != "" {
		t.Skip("Skipping integration test in CI environment")
	}

	ctx := context.Background()
	redisAddr := "localhost:6379"
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr, DB: 0})
	defer redisClient.Close()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		t.Skip("Redis is not available, skipping integration test")
	}

	prefix := fmt.Sprintf("test_inventory_%d", time.Now().UnixNano())
	stream := prefix + ":0"
	defer redisClient.Del(ctx, stream)

	pub := publisher.NewRedisPublisher(redisAddr, 0, prefix, 1, 100)
	defer pub.Close()

	site := &dealerSite{}
	site.setLot(civic, soul)
	server := httptest.NewServer(site)
	defer server.Close()

	_, err := newTestWorker(t, server.URL, t.TempDir(), "2024-05-01", worker.WithPublisher(pub)).RunOnce(ctx)
	require.NoError(t, err)

	entries, err := redisClient.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	encoded, ok := entries[0].Values[publisher.MessageKey].(string)
	require.True(t, ok)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var ev publisher.Event
	require.NoError(t, json.Unmarshal(decoded, &ev))
	assert.Equal(t, publisher.EventAdded, ev.Type)
	assert.Equal(t, "2024-05-01", ev.Date)
	assert.Equal(t, civic.vin, ev.VIN())
}
