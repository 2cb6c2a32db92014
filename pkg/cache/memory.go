package cache

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

type memItem struct {
	entry *Entry
	freq  uint64
	seq   uint64
	index int
}

// lfuHeap orders items by access count, oldest access first among equals.
type lfuHeap []*memItem

func (h lfuHeap) Len() int { return len(h) }

func (h lfuHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].seq < h[j].seq
}

func (h lfuHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *lfuHeap) Push(x any) {
	it := x.(*memItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *lfuHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

type eviction struct {
	entry  *Entry
	reason string
}

// MemoryStore is an in-process store bounded by entry count with
// least-frequently-used eviction.
type MemoryStore struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	items map[string]*memItem
	lfu   lfuHeap
	seq   uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its sweeper. Close stops
// the sweeper.
func NewMemoryStore(opts Options) *MemoryStore {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	m := &MemoryStore{
		opts:  opts,
		now:   time.Now,
		items: make(map[string]*memItem),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go m.sweepLoop(opts.SweepInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, url string) (*Entry, error) {
	var evicted []eviction
	defer func() { m.notify(evicted) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[url]
	if !ok {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	now := m.now()
	if reason := m.expiry(it.entry, now); reason != "" {
		evicted = append(evicted, m.remove(it, reason))
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	m.seq++
	it.freq++
	it.seq = m.seq
	heap.Fix(&m.lfu, it.index)

	touched := it.entry.clone()
	touched.AccessedAt = now
	it.entry = touched

	CacheHits.WithLabelValues("memory").Inc()
	return touched.clone(), nil
}

// Set stores entry, replacing any entry for the same URL. A replaced entry
// keeps its access count.
func (m *MemoryStore) Set(_ context.Context, entry *Entry) error {
	if err := validEntry(entry); err != nil {
		return err
	}

	var evicted []eviction
	defer func() { m.notify(evicted) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := entry.clone()
	if e.StoredAt.IsZero() {
		e.StoredAt = now
	}
	e.AccessedAt = now

	m.seq++
	if it, ok := m.items[e.URL]; ok {
		it.entry = e
		it.seq = m.seq
		heap.Fix(&m.lfu, it.index)
		return nil
	}

	for len(m.items) >= m.opts.Capacity {
		victim := m.lfu[0]
		evicted = append(evicted, m.remove(victim, EvictCapacity))
	}

	it := &memItem{entry: e, seq: m.seq}
	heap.Push(&m.lfu, it)
	m.items[e.URL] = it
	CacheEntries.WithLabelValues("memory").Inc()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.items[url]; ok {
		heap.Remove(&m.lfu, it.index)
		delete(m.items, url)
		CacheEntries.WithLabelValues("memory").Dec()
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Sweep removes expired and idle entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	var evicted []eviction

	m.mu.Lock()
	now := m.now()
	for _, it := range m.items {
		if reason := m.expiry(it.entry, now); reason != "" {
			evicted = append(evicted, m.remove(it, reason))
		}
	}
	m.mu.Unlock()

	m.notify(evicted)
	return len(evicted)
}

// Close stops the sweeper. The store stays usable.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *MemoryStore) expiry(e *Entry, now time.Time) string {
	switch {
	case m.opts.TTL > 0 && now.Sub(e.StoredAt) >= m.opts.TTL:
		return EvictExpired
	case m.opts.IdleTimeout > 0 && now.Sub(e.AccessedAt) >= m.opts.IdleTimeout:
		return EvictIdle
	}
	return ""
}

// remove must be called with m.mu held.
func (m *MemoryStore) remove(it *memItem, reason string) eviction {
	heap.Remove(&m.lfu, it.index)
	delete(m.items, it.entry.URL)
	CacheEntries.WithLabelValues("memory").Dec()
	CacheEvictions.WithLabelValues(reason).Inc()
	return eviction{entry: it.entry, reason: reason}
}

func (m *MemoryStore) notify(evicted []eviction) {
	if m.opts.OnEvict == nil {
		return
	}
	for _, ev := range evicted {
		m.opts.OnEvict(ev.entry, ev.reason)
	}
}
