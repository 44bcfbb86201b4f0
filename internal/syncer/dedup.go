package syncer

import (
	"container/list"
	"sync"

	"PosTrack/internal/observability"
)

// TradeChecker is the database-tier lookup for already-ingested order ids.
type TradeChecker interface {
	IsKnownTrade(account, orderID string) (bool, error)
}

// TradeDedup implements two-tier deduplication of trade order ids: a hot
// in-memory LRU backed by a Postgres lookup. Safe for concurrent use by
// the per-symbol sync goroutines.
type TradeDedup struct {
	mu      sync.Mutex
	lru     *keyLRU
	db      TradeChecker
	metrics *observability.Metrics
}

func NewTradeDedup(capacity int, db TradeChecker, metrics *observability.Metrics) *TradeDedup {
	return &TradeDedup{
		lru:     newKeyLRU(capacity),
		db:      db,
		metrics: metrics,
	}
}

// Seen reports whether the order id was already ingested for the account.
// A database error counts as "not seen": the trade insert's ON CONFLICT
// clause is the backstop, so a flaky lookup never drops data.
func (d *TradeDedup) Seen(account, orderID string) bool {
	key := account + ":" + orderID

	d.mu.Lock()
	hit := d.lru.contains(key)
	d.mu.Unlock()
	if hit {
		if d.metrics != nil {
			d.metrics.DedupHits.WithLabelValues("lru").Inc()
		}
		return true
	}

	if d.db == nil {
		return false
	}

	known, err := d.db.IsKnownTrade(account, orderID)
	if err != nil {
		if d.metrics != nil {
			d.metrics.DedupErrors.Inc()
		}
		return false
	}
	if known {
		if d.metrics != nil {
			d.metrics.DedupHits.WithLabelValues("postgres").Inc()
		}
		d.Mark(account, orderID)
	}
	return known
}

// Mark records an order id as ingested.
func (d *TradeDedup) Mark(account, orderID string) {
	d.mu.Lock()
	d.lru.add(account + ":" + orderID)
	d.mu.Unlock()
}

// Size returns the current LRU occupancy.
func (d *TradeDedup) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lru.len()
}

// keyLRU is a fixed-capacity LRU of string keys. Callers hold the lock.
type keyLRU struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newKeyLRU(capacity int) *keyLRU {
	if capacity < 1 {
		capacity = 1
	}
	return &keyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (l *keyLRU) contains(key string) bool {
	elem, ok := l.cache[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

func (l *keyLRU) add(key string) {
	if elem, ok := l.cache[key]; ok {
		l.order.MoveToFront(elem)
		return
	}
	l.cache[key] = l.order.PushFront(key)

	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		delete(l.cache, oldest.Value.(string))
	}
}

func (l *keyLRU) len() int {
	return l.order.Len()
}
