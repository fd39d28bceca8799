package internal

import (
	"sjsage522/inventorywatch/internal/browser"
	"sjsage522/inventorywatch/services/cache"
	"sjsage522/inventorywatch/services/publisher"
	"sjsage522/inventorywatch/services/store"
)

// Dependencies holds all service dependencies of a run
type Dependencies struct {
	Session   browser.Opener
	Store     *store.CSVStore
	Cache     cache.CacheService
	Publisher publisher.Publisher
}

// Close releases the browser and the publisher connection
func (d *Dependencies) Close() {
	if d.Session != nil {
		d.Session.Close()
	}
	if d.Publisher != nil {
		d.Publisher.Close()
	}
}
