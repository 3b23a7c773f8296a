package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

func TestWorker_SerializesOperations(t *testing.T) {
	w := NewWorker("test", nil, 0, nil)
	defer w.Close()

	// counter is unsynchronized on purpose; the race detector flags any
	// concurrent execution.
	counter := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.Do(context.Background(), func(context.Context) error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, w.Do(context.Background(), func(context.Context) error {
		assert.Equal(t, 50, counter)
		return nil
	}))
}

func TestWorker_ReturnsOperationError(t *testing.T) {
	w := NewWorker("test", nil, 0, nil)
	defer w.Close()

	want := errors.New("boom")
	err := w.Do(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestWorker_TimeoutIsTransient(t *testing.T) {
	w := NewWorker("test", nil, 20*time.Millisecond, nil)
	defer w.Close()

	release := make(chan struct{})
	err := w.Do(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	close(release)

	require.Error(t, err)
	assert.ErrorIs(t, err, display.ErrTransientIO)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The worker is still usable afterwards.
	assert.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	w := NewWorker("test", nil, 0, nil)
	defer w.Close()

	err := w.Do(context.Background(), func(context.Context) error {
		panic("driver exploded")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver exploded")

	assert.NoError(t, w.Do(context.Background(), func(context.Context) error { return nil }))
}

func TestWorker_CloseReleasesOnce(t *testing.T) {
	var releases atomic.Int32
	releaseErr := errors.New("release failed")
	w := NewWorker("test", func() error {
		releases.Add(1)
		return releaseErr
	}, 0, nil)

	assert.ErrorIs(t, w.Close(), releaseErr)
	assert.ErrorIs(t, w.Close(), releaseErr)
	assert.Equal(t, int32(1), releases.Load())

	err := w.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorker_CloseWaitsForRunningOperation(t *testing.T) {
	var released atomic.Bool
	w := NewWorker("test", func() error {
		released.Store(true)
		return nil
	}, 0, nil)

	started := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		_ = w.Do(context.Background(), func(context.Context) error {
			close(started)
			time.Sleep(20 * time.Millisecond)
			assert.False(t, released.Load(), "released while an operation was running")
			return nil
		})
		close(finished)
	}()

	<-started
	require.NoError(t, w.Close())
	assert.True(t, released.Load())
	<-finished
}
