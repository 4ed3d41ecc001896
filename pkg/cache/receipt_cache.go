package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ReceiptCache remembers final receipt outcomes per transaction hash so the
// sweeper and manual checks do not query the node or explorer again.
type ReceiptCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cachedReceipt
}

type cachedReceipt struct {
	Success   bool
	Timestamp time.Time
}

func NewReceiptCache(ttl time.Duration) *ReceiptCache {
	return &ReceiptCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cachedReceipt),
	}
}

// Get returns the cached outcome for hash, or false if absent or stale.
func (c *ReceiptCache) Get(hash string) (success bool, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[hash]
	if !ok {
		return false, false
	}
	if c.now().Sub(e.Timestamp) > c.ttl {
		delete(c.entries, hash)
		return false, false
	}
	logrus.WithField("tx_hash", hash).Debug("receipt taken from cache")
	return e.Success, true
}

func (c *ReceiptCache) Set(hash string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[hash] = cachedReceipt{Success: success, Timestamp: c.now()}
}
