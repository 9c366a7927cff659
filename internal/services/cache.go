package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// TableSource yields the current normalized table.
type TableSource interface {
	Load(ctx context.Context) (*Table, error)
}

// sourceKey identifies one version of the source file.
type sourceKey struct {
	modTime time.Time
	size    int64
}

func (k sourceKey) String() string {
	return fmt.Sprintf("%d:%d", k.modTime.UnixNano(), k.size)
}

func (k sourceKey) equal(o sourceKey) bool {
	return k.size == o.size && k.modTime.Equal(o.modTime)
}

// TableCache memoizes the normalized table for one source file. The cached
// table is replaced only when the file's modification time or size changes.
type TableCache struct {
	path   string
	opts   LoadOptions
	logger *slog.Logger

	mu    sync.RWMutex
	table *Table
	key   sourceKey

	group  singleflight.Group
	loads  atomic.Int64
	hits   atomic.Int64
	stat   func(string) (os.FileInfo, error)
	loadFn func(ctx context.Context, path string, opts LoadOptions, logger *slog.Logger) (*Table, error)
}

func NewTableCache(path string, opts LoadOptions, logger *slog.Logger) *TableCache {
	return &TableCache{
		path:   path,
		opts:   opts,
		logger: logger,
		stat:   os.Stat,
		loadFn: LoadFile,
	}
}

// Load returns the cached table, reloading it first if the source changed.
// Concurrent callers that miss share a single reload.
func (c *TableCache) Load(ctx context.Context) (*Table, error) {
	info, err := c.stat(c.path)
	if err != nil {
		return nil, &SourceError{Path: c.path, Err: err}
	}
	key := sourceKey{modTime: info.ModTime(), size: info.Size()}

	if t := c.cached(key); t != nil {
		c.hits.Add(1)
		return t, nil
	}

	// The reload is shared, so one caller going away must not fail the rest.
	loadCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		if t := c.cached(key); t != nil {
			return t, nil
		}
		c.logger.Info("loading dataset", "path", c.path, "key", key.String())
		t, err := c.loadFn(loadCtx, c.path, c.opts, c.logger)
		if err != nil {
			return nil, err
		}
		c.loads.Add(1)

		c.mu.Lock()
		previous := c.table
		c.table = t
		c.key = key
		c.mu.Unlock()

		if previous != nil {
			c.logger.Info("dataset invalidated by source change", "path", c.path)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("dataset load shared", "key", key.String())
	}
	return v.(*Table), nil
}

func (c *TableCache) cached(key sourceKey) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table != nil && c.key.equal(key) {
		return c.table
	}
	return nil
}

// Invalidate drops the cached table so the next Load rereads the source.
func (c *TableCache) Invalidate() {
	c.mu.Lock()
	c.table = nil
	c.key = sourceKey{}
	c.mu.Unlock()
}

func (c *TableCache) Stats() map[string]any {
	c.mu.RLock()
	key := c.key
	loaded := c.table != nil
	c.mu.RUnlock()

	return map[string]any{
		"path":   c.path,
		"loaded": loaded,
		"key":    key.String(),
		"loads":  c.loads.Load(),
		"hits":   c.hits.Load(),
	}
}

// StaticSource serves a prebuilt table, for tests and embedded datasets.
type StaticSource struct {
	Table *Table
}

func (s StaticSource) Load(context.Context) (*Table, error) {
	return s.Table, nil
}
