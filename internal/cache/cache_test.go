package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource counts backend calls and can be made to fail or block.
type fakeSource struct {
	mu     sync.Mutex
	values map[display.Kind]int64
	getErr error
	setErr error
	gets   int
	sets   int
	gate   chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{values: map[display.Kind]int64{display.KindVibrance: 100}}
}

func (s *fakeSource) GetAttribute(_ context.Context, _ display.ID, kind display.Kind) (display.Value, error) {
	s.mu.Lock()
	s.gets++
	gate, err, raw := s.gate, s.getErr, s.values[kind]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return display.Value{}, err
	}
	return display.IntValue(kind, raw), nil
}

func (s *fakeSource) SetAttribute(_ context.Context, _ display.ID, kind display.Kind, v display.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.values[kind] = v.Raw
	return nil
}

func (s *fakeSource) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *fakeSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr = err
}

var dp0 = display.ID{Device: 0, Connector: 0}

func TestCache_IdempotentWithinMaxAge(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := newFakeSource()
	c := New(src, Config{Now: clock.Now})
	maxAge := 2 * time.Second

	r1, err := c.GetOrFetch(ctx, dp0, display.KindVibrance, maxAge)
	require.NoError(t, err)
	clock.Advance(maxAge)
	r2, err := c.GetOrFetch(ctx, dp0, display.KindVibrance, maxAge)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.False(t, r2.Stale)
	assert.Equal(t, 1, src.getCount(), "second read within max age hit the backend")

	clock.Advance(time.Millisecond)
	r3, err := c.GetOrFetch(ctx, dp0, display.KindVibrance, maxAge)
	require.NoError(t, err)
	assert.Equal(t, 2, src.getCount(), "read after max age should fetch exactly once")
	assert.True(t, r3.ObservedAt.After(r1.ObservedAt))

	_, err = c.GetOrFetch(ctx, dp0, display.KindVibrance, maxAge)
	require.NoError(t, err)
	assert.Equal(t, 2, src.getCount())
}

func TestCache_StaleOnFailure(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := newFakeSource()
	c := New(src, Config{Now: clock.Now, MaxAge: time.Second})

	fresh, err := c.Get(ctx, dp0, display.KindVibrance)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	src.fail(display.ErrTransientIO)

	stale, err := c.Get(ctx, dp0, display.KindVibrance)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.Value, stale.Value)
	assert.Equal(t, fresh.ObservedAt, stale.ObservedAt)
	assert.ErrorIs(t, stale.Cause, display.ErrTransientIO)
	assert.NotEmpty(t, stale.CauseString())
	assert.Equal(t, uint64(1), c.Stats().StaleServed)
}

func TestCache_FailureWithoutEntryPropagates(t *testing.T) {
	src := newFakeSource()
	src.fail(display.ErrPermissionDenied)
	c := New(src, Config{})

	_, err := c.Get(context.Background(), dp0, display.KindVibrance)
	assert.ErrorIs(t, err, display.ErrPermissionDenied)
	_, ok := c.Peek(dp0, display.KindVibrance)
	assert.False(t, ok)
}

func TestCache_SetUpdatesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	src := newFakeSource()
	c := New(src, Config{Now: clock.Now})

	require.NoError(t, c.Set(ctx, dp0, display.KindVibrance, display.IntValue(display.KindVibrance, 512)))
	r, err := c.Get(ctx, dp0, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, int64(512), r.Value.Raw)
	assert.Zero(t, src.getCount(), "value written should be served from cache")

	src.mu.Lock()
	src.setErr = display.ErrExternalTool
	src.mu.Unlock()

	err = c.Set(ctx, dp0, display.KindVibrance, display.IntValue(display.KindVibrance, -7))
	require.ErrorIs(t, err, display.ErrExternalTool)
	r, ok := c.Peek(dp0, display.KindVibrance)
	require.True(t, ok)
	assert.Equal(t, int64(512), r.Value.Raw)
}

func TestCache_SetAlwaysGoesLive(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	c := New(src, Config{})

	for range 3 {
		require.NoError(t, c.Set(ctx, dp0, display.KindVibrance, display.IntValue(display.KindVibrance, 1)))
	}
	assert.Equal(t, 3, src.sets)
}

func TestCache_ConcurrentFetchesCollapse(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	c := New(src, Config{})

	var wg sync.WaitGroup
	results := make([]Result, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := c.Get(context.Background(), dp0, display.KindVibrance)
			assert.NoError(t, err)
			results[i] = r
		}()
	}

	require.Eventually(t, func() bool { return src.getCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, 1, src.getCount())
	for _, r := range results {
		assert.Equal(t, int64(100), r.Value.Raw)
	}
}

func TestCache_Refresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := newFakeClock()
	src := newFakeSource()
	c := New(src, Config{Now: clock.Now})

	_, err := c.Get(ctx, dp0, display.KindVibrance)
	require.NoError(t, err)

	src.mu.Lock()
	src.values[display.KindVibrance] = 300
	src.mu.Unlock()
	clock.Advance(time.Second)

	c.Refresh(ctx, dp0, display.KindVibrance)
	cancel()
	c.Wait()

	r, ok := c.Peek(dp0, display.KindVibrance)
	require.True(t, ok)
	assert.Equal(t, int64(300), r.Value.Raw)
	assert.Equal(t, clock.Now(), r.ObservedAt)

	// A failed refresh keeps the old entry.
	src.fail(errors.New("gone"))
	c.Refresh(context.Background(), dp0, display.KindVibrance)
	c.Wait()
	r, ok = c.Peek(dp0, display.KindVibrance)
	require.True(t, ok)
	assert.Equal(t, int64(300), r.Value.Raw)
}

func TestCache_PeekAndInvalidate(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(newFakeSource(), Config{Now: clock.Now, MaxAge: time.Second})
	hdmi := display.ID{Connector: 1}

	_, err := c.Get(ctx, dp0, display.KindVibrance)
	require.NoError(t, err)
	_, err = c.Get(ctx, hdmi, display.KindVibrance)
	require.NoError(t, err)

	r, ok := c.Peek(dp0, display.KindVibrance)
	require.True(t, ok)
	assert.False(t, r.Stale)

	clock.Advance(2 * time.Second)
	r, _ = c.Peek(dp0, display.KindVibrance)
	assert.True(t, r.Stale, "peek past the window should flag the entry")

	c.Invalidate(dp0)
	_, ok = c.Peek(dp0, display.KindVibrance)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Entries)

	c.InvalidateAll()
	assert.Zero(t, c.Stats().Entries)
}
