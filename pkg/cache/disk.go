package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
)

// DefaultDiskSize bounds a DiskStore opened with a non-positive size.
const DefaultDiskSize = 1 << 30

// Key prefixes: "e:" holds the entry, "m:" its size and last access.
var (
	entryPrefix = []byte("e:")
	metaPrefix  = []byte("m:")
)

type diskMeta struct {
	Size       int64 `json:"size"`
	LastAccess int64 `json:"last_access"`
}

// DiskStore keeps entries in a leveldb database. When the stored bytes
// exceed the bound, the least recently accessed tenth of the entries is
// dropped.
type DiskStore struct {
	db       *leveldb.DB
	maxBytes int64
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.Mutex
	index     map[string]diskMeta
	totalSize int64
}

// OpenDiskStore opens or creates the database at path. The disk tier is
// swap space for one process: entries left by a previous run are removed.
func OpenDiskStore(path string, maxBytes int64, opts Options, logger zerolog.Logger) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultDiskSize
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	d := &DiskStore{
		db:       db,
		maxBytes: maxBytes,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		index:    map[string]diskMeta{},
	}
	if err := d.clear(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clear disk store: %w", err)
	}
	return d, nil
}

func (d *DiskStore) clear() error {
	it := d.db.NewIterator(nil, nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(bytes.Clone(it.Key()))
	}
	if err := it.Error(); err != nil {
		return err
	}
	if batch.Len() > 0 {
		d.logger.Debug().Int("keys", batch.Len()).Msg("Removing entries of a previous run")
		if err := d.db.Write(batch, nil); err != nil {
			return err
		}
	}
	CacheEntries.WithLabelValues("disk").Set(0)
	return nil
}

func (d *DiskStore) Get(ctx context.Context, url string) (*Entry, error) {
	b, err := d.db.Get(d.entryKey(url), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("leveldb get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	d.mu.Lock()
	meta, ok := d.index[url]
	d.mu.Unlock()
	if ok && meta.LastAccess > 0 {
		entry.AccessedAt = time.Unix(0, meta.LastAccess)
	}

	now := d.now()
	if entry.Expired(now, d.opts.TTL, d.opts.IdleTimeout) {
		_ = d.Delete(ctx, url)
		CacheEvictions.WithLabelValues(EvictExpired).Inc()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	entry.AccessedAt = now
	d.touch(url, now)
	CacheHits.WithLabelValues("disk").Inc()
	return &entry, nil
}

func (d *DiskStore) touch(url string, now time.Time) {
	d.mu.Lock()
	meta, ok := d.index[url]
	if ok {
		meta.LastAccess = now.UnixNano()
		d.index[url] = meta
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	mb, _ := json.Marshal(meta)
	if err := d.db.Put(d.metaKey(url), mb, nil); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
	}
}

func (d *DiskStore) entryKey(url string) []byte {
	return append(append([]byte(nil), entryPrefix...), url...)
}

func (d *DiskStore) metaKey(url string) []byte {
	return append(append([]byte(nil), metaPrefix...), url...)
}

func (d *DiskStore) Set(_ context.Context, entry *Entry) error {
	if err := validEntry(entry); err != nil {
		return err
	}

	now := d.now()
	e := entry.clone()
	if e.StoredAt.IsZero() {
		e.StoredAt = now
	}
	e.AccessedAt = now

	b, err := json.Marshal(e)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	meta := diskMeta{Size: int64(len(b)), LastAccess: now.UnixNano()}
	mb, _ := json.Marshal(meta)

	batch := new(leveldb.Batch)
	batch.Put(d.entryKey(e.URL), b)
	batch.Put(d.metaKey(e.URL), mb)
	if err := d.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("leveldb write: %w", err)
	}

	d.mu.Lock()
	if old, ok := d.index[e.URL]; ok {
		d.totalSize -= old.Size
	}
	d.index[e.URL] = meta
	d.totalSize += meta.Size
	over := d.totalSize > d.maxBytes
	count := len(d.index)
	d.mu.Unlock()

	CacheEntries.WithLabelValues("disk").Set(float64(count))
	if over {
		d.evictSome()
	}
	return nil
}

func (d *DiskStore) Delete(_ context.Context, url string) error {
	batch := new(leveldb.Batch)
	batch.Delete(d.entryKey(url))
	batch.Delete(d.metaKey(url))
	if err := d.db.Write(batch, nil); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("leveldb delete: %w", err)
	}

	d.mu.Lock()
	if meta, ok := d.index[url]; ok {
		d.totalSize -= meta.Size
		delete(d.index, url)
	}
	count := len(d.index)
	d.mu.Unlock()

	CacheEntries.WithLabelValues("disk").Set(float64(count))
	return nil
}

// evictSome drops the least recently accessed tenth of the entries, at
// least one.
func (d *DiskStore) evictSome() {
	type item struct {
		key  string
		meta diskMeta
	}

	d.mu.Lock()
	items := make([]item, 0, len(d.index))
	for k, m := range d.index {
		items = append(items, item{k, m})
	}
	d.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].meta.LastAccess < items[j].meta.LastAccess
	})

	n := len(items) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(items); i++ {
		if err := d.Delete(context.Background(), items[i].key); err != nil {
			d.logger.Warn().Err(err).Str("url", items[i].key).Msg("Failed to evict disk entry")
			continue
		}
		CacheEvictions.WithLabelValues(EvictSize).Inc()
	}

	d.logger.Debug().
		Int("evicted", n).
		Int64("total_bytes", d.TotalSize()).
		Msg("Disk cache over size bound")
}

// Len returns the number of indexed entries.
func (d *DiskStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

// TotalSize returns the stored bytes.
func (d *DiskStore) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalSize
}

func (d *DiskStore) Close() error {
	return d.db.Close()
}
