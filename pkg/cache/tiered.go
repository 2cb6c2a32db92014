package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// TieredStore is a MemoryStore whose capacity evictions spill to a
// DiskStore. Disk hits are promoted back to memory.
type TieredStore struct {
	mem    *MemoryStore
	disk   *DiskStore
	logger zerolog.Logger
}

// NewTieredStore creates the memory tier from opts in front of disk.
// opts.OnEvict, if set, is still called for every memory eviction.
func NewTieredStore(opts Options, disk *DiskStore, logger zerolog.Logger) *TieredStore {
	t := &TieredStore{disk: disk, logger: logger}

	next := opts.OnEvict
	opts.OnEvict = func(e *Entry, reason string) {
		if reason == EvictCapacity {
			t.spill(e)
		}
		if next != nil {
			next(e, reason)
		}
	}
	t.mem = NewMemoryStore(opts)
	return t
}

func (t *TieredStore) spill(e *Entry) {
	if err := t.disk.Set(context.Background(), e); err != nil {
		t.logger.Warn().Err(err).Str("url", e.URL).Msg("Failed to spill entry to disk")
		return
	}
	t.logger.Debug().Str("url", e.URL).Int("size", e.Size()).Msg("Entry spilled to disk")
}

func (t *TieredStore) Get(ctx context.Context, url string) (*Entry, error) {
	entry, err := t.mem.Get(ctx, url)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return entry, err
	}

	entry, err = t.disk.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := t.mem.Set(ctx, entry); err != nil {
		return entry, nil
	}
	_ = t.disk.Delete(ctx, url)
	return entry, nil
}

// Set stores entry in memory and drops any older copy from disk.
func (t *TieredStore) Set(ctx context.Context, entry *Entry) error {
	if err := t.mem.Set(ctx, entry); err != nil {
		return err
	}
	return t.disk.Delete(ctx, entry.URL)
}

func (t *TieredStore) Delete(ctx context.Context, url string) error {
	if err := t.mem.Delete(ctx, url); err != nil {
		return err
	}
	return t.disk.Delete(ctx, url)
}

// Close stops the memory sweeper and closes the disk store.
func (t *TieredStore) Close() error {
	_ = t.mem.Close()
	return t.disk.Close()
}
