package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// DefaultMaxAge is the freshness window used by Get.
const DefaultMaxAge = 5 * time.Second

// Source is the backend the cache reads through and writes to.
type Source interface {
	GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error)
	SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is a value together with when it was observed. Stale is set when
// the live read failed and the value is the last known one; Cause then
// holds that failure.
type Result struct {
	Value      display.Value `json:"value"`
	ObservedAt time.Time     `json:"observed_at"`
	Stale      bool          `json:"stale"`
	Cause      error         `json:"-"`
}

// CauseString returns the stale cause as text, or "".
func (r Result) CauseString() string {
	if r.Cause == nil {
		return ""
	}
	return r.Cause.Error()
}

// Config holds cache configuration.
type Config struct {
	// MaxAge is the window used by Get. Default: 5s.
	MaxAge time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Logger receives refresh failures. Optional.
	Logger Logger
}

// Stats holds cache statistics.
type Stats struct {
	Entries     int    `json:"entries"`
	Hits        uint64 `json:"hits"`
	Fetches     uint64 `json:"fetches"`
	StaleServed uint64 `json:"stale_served"`
	Failures    uint64 `json:"failures"`
}

type key struct {
	id   display.ID
	kind display.Kind
}

func (k key) String() string {
	return k.id.String() + "/" + string(k.kind)
}

type entry struct {
	value      display.Value
	observedAt time.Time
}

// Cache serves attribute reads from memory while they are fresh and
// keeps the last known value when the backend fails.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent
// fetches of the same display and kind share one backend call.
type Cache struct {
	src    Source
	now    func() time.Time
	maxAge time.Duration
	logger Logger

	group singleflight.Group

	mu      sync.RWMutex
	entries map[key]entry

	refreshes sync.WaitGroup

	hits        atomic.Uint64
	fetches     atomic.Uint64
	staleServed atomic.Uint64
	failures    atomic.Uint64
}

// New creates a cache over src.
func New(src Source, cfg Config) *Cache {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Cache{
		src:     src,
		now:     cfg.Now,
		maxAge:  cfg.MaxAge,
		logger:  cfg.Logger,
		entries: make(map[key]entry),
	}
}

// MaxAge returns the window used by Get.
func (c *Cache) MaxAge() time.Duration {
	return c.maxAge
}

// Get is GetOrFetch with the configured window.
func (c *Cache) Get(ctx context.Context, id display.ID, kind display.Kind) (Result, error) {
	return c.GetOrFetch(ctx, id, kind, c.maxAge)
}

// GetOrFetch returns the cached value of kind on id if it was observed no
// more than maxAge ago. Otherwise it reads live and caches the result. If
// the live read fails and a value is cached, that value is returned with
// Stale set and a nil error; with nothing cached the error is returned.
func (c *Cache) GetOrFetch(ctx context.Context, id display.ID, kind display.Kind, maxAge time.Duration) (Result, error) {
	k := key{id: id, kind: kind}

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && c.now().Sub(e.observedAt) <= maxAge {
		c.hits.Add(1)
		return Result{Value: e.value, ObservedAt: e.observedAt}, nil
	}

	res, err := c.fetch(ctx, k, maxAge)
	if err == nil {
		return res, nil
	}

	c.mu.RLock()
	e, ok = c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return Result{}, err
	}

	c.staleServed.Add(1)
	c.logger.Debug("serving stale attribute value",
		"display", id.String(),
		"kind", string(kind),
		"age", c.now().Sub(e.observedAt).String(),
		"error", err,
	)
	return Result{Value: e.value, ObservedAt: e.observedAt, Stale: true, Cause: err}, nil
}

// Set writes value live. The cache is updated only when the write
// succeeds; a failed write leaves the cached entry as it was.
func (c *Cache) Set(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	if err := c.src.SetAttribute(ctx, id, kind, value); err != nil {
		return err
	}
	c.store(key{id: id, kind: kind}, value)
	return nil
}

// Peek returns the cached entry without touching the backend. The result
// is marked Stale when it is older than the configured window.
func (c *Cache) Peek(id display.ID, kind display.Kind) (Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key{id: id, kind: kind}]
	c.mu.RUnlock()
	if !ok {
		return Result{}, false
	}
	return Result{
		Value:      e.value,
		ObservedAt: e.observedAt,
		Stale:      c.now().Sub(e.observedAt) > c.maxAge,
	}, true
}

// Refresh starts an asynchronous live read of kind on id. The cached
// entry stays readable meanwhile and is replaced only on success. ctx
// values are kept but its cancellation is not.
func (c *Cache) Refresh(ctx context.Context, id display.ID, kind display.Kind) {
	ctx = context.WithoutCancel(ctx)
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		if _, err := c.fetch(ctx, key{id: id, kind: kind}, -1); err != nil {
			c.logger.Warn("attribute refresh failed",
				"display", id.String(),
				"kind", string(kind),
				"error", err,
			)
		}
	}()
}

// Wait blocks until every refresh started so far has finished.
func (c *Cache) Wait() {
	c.refreshes.Wait()
}

// Invalidate drops every entry of id.
func (c *Cache) Invalidate(id display.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.id == id {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Entries:     n,
		Hits:        c.hits.Load(),
		Fetches:     c.fetches.Load(),
		StaleServed: c.staleServed.Load(),
		Failures:    c.failures.Load(),
	}
}

// fetch reads live, collapsing concurrent reads of the same key. A
// caller that lost the race to a flight that just finished gets that
// flight's entry while it is within maxAge; a negative maxAge always
// reads live.
func (c *Cache) fetch(ctx context.Context, k key, maxAge time.Duration) (Result, error) {
	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		if maxAge >= 0 {
			c.mu.RLock()
			e, ok := c.entries[k]
			c.mu.RUnlock()
			if ok && c.now().Sub(e.observedAt) <= maxAge {
				c.hits.Add(1)
				return Result{Value: e.value, ObservedAt: e.observedAt}, nil
			}
		}

		c.fetches.Add(1)
		value, err := c.src.GetAttribute(ctx, k.id, k.kind)
		if err != nil {
			c.failures.Add(1)
			return nil, err
		}
		return c.store(k, value), nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetching %s: %w", k, err)
	}
	return v.(Result), nil //nolint:forcetypeassert // only Result is stored
}

func (c *Cache) store(k key, value display.Value) Result {
	e := entry{value: value, observedAt: c.now()}
	c.mu.Lock()
	c.entries[k] = e
	c.mu.Unlock()
	return Result{Value: e.value, ObservedAt: e.observedAt}
}
