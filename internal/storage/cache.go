package storage

import (
	"sync"

	"github.com/funnycal/fulfillment/internal/metrics"
	"github.com/funnycal/fulfillment/internal/order"
)

// orderCache is a write-through cache of live order records. Entries are
// set on every successful write and dropped on archival, so a cached copy
// never outlives its live-partition file.
type orderCache struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func newOrderCache() *orderCache {
	return &orderCache{orders: make(map[string]*order.Order)}
}

func (c *orderCache) get(orderID string) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, found := c.orders[orderID]
	if !found {
		return nil, false
	}
	orderCopy := *o
	return &orderCopy, true
}

func (c *orderCache) set(o *order.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	orderCopy := *o
	c.orders[o.OrderID] = &orderCopy
	metrics.OrderCacheItems.Set(float64(len(c.orders)))
}

func (c *orderCache) delete(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
	metrics.OrderCacheItems.Set(float64(len(c.orders)))
}
