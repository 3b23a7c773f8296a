package backend

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

var first = display.ID{Device: 0, Connector: 0}

func newFallbackMock() *Mock {
	return SingleDisplay().WithName("nvidia-settings").WithValue(first, display.KindVibrance, 100)
}

func TestReal_VibranceScenario(t *testing.T) {
	ctx := context.Background()
	primary := SingleDisplay()
	r := NewReal(primary, nil)
	defer r.Close()

	rng, err := r.ValidValues(ctx, first, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, int64(-1024), rng.Min)
	assert.Equal(t, int64(1023), rng.Max)
	assert.Equal(t, int64(0), rng.Default)

	require.NoError(t, r.SetAttribute(ctx, first, display.KindVibrance, display.IntValue(display.KindVibrance, 512)))
	v, err := r.GetAttribute(ctx, first, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, int64(512), v.Raw)

	err = r.SetAttribute(ctx, first, display.KindVibrance, display.IntValue(display.KindVibrance, 2000))
	require.ErrorIs(t, err, display.ErrInvalidAttributeValue)
	var invalid *display.InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "-1024..=1023", invalid.Range.String())
}

func TestReal_OutOfRangeNeverWrites(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		kind  display.Kind
		value int64
	}{
		{"vibrance above max", display.KindVibrance, 1024},
		{"vibrance below min", display.KindVibrance, -1025},
		{"sharpening negative", display.KindSharpening, -1},
		{"color range not in set", display.KindColorRange, 7},
		{"color space not in set", display.KindColorSpace, 9},
		{"dithering not boolean", display.KindDithering, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := SingleDisplay()
			r := NewReal(mock, nil)
			defer r.Close()

			err := r.SetAttribute(ctx, first, tt.kind, display.IntValue(tt.kind, tt.value))
			assert.ErrorIs(t, err, display.ErrInvalidAttributeValue)
			assert.Zero(t, mock.CallCount(OpSet), "out-of-range value reached the driver")
		})
	}
}

func TestReal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := MultipleDisplays(2)
	r := NewReal(mock, nil)
	defer r.Close()

	for _, id := range []display.ID{{Connector: 0}, {Connector: 1}} {
		for _, kind := range display.Kinds() {
			rng, err := r.ValidValues(ctx, id, kind)
			require.NoError(t, err)

			candidates := []int64{rng.Min, rng.Max, rng.Default}
			for _, raw := range candidates {
				if !rng.Contains(raw) {
					continue
				}
				require.NoError(t, r.SetAttribute(ctx, id, kind, display.IntValue(kind, raw)))
				got, err := r.GetAttribute(ctx, id, kind)
				require.NoError(t, err)
				assert.Equal(t, raw, got.Raw, "%s on %s", kind, id)
			}
		}
	}
}

func TestReal_NoDeviceFallsBackOnce(t *testing.T) {
	ctx := context.Background()
	primary := NoDevice()
	fallback := newFallbackMock()
	r := NewReal(primary, fallback)
	defer r.Close()

	// Without a fallback every operation reports the device unavailable.
	_, err := primary.GetAttribute(ctx, first, display.KindVibrance)
	require.ErrorIs(t, err, display.ErrDeviceUnavailable)

	for range 5 {
		v, err := r.GetAttribute(ctx, first, display.KindVibrance)
		require.NoError(t, err)
		assert.Equal(t, int64(100), v.Raw)
	}
	require.NoError(t, r.SetAttribute(ctx, first, display.KindVibrance, display.IntValue(display.KindVibrance, 50)))

	assert.Equal(t, 1, primary.CallCount(OpOpen), "primary probed more than once")
	assert.Equal(t, 1, fallback.CallCount(OpOpen))
	assert.Equal(t, 0, primary.CallCount(OpGet))
	assert.Equal(t, "nvidia-settings", r.Active())

	st := r.Stats()
	assert.True(t, st.FellBack)
	assert.Equal(t, uint64(1), st.OpenAttempts)
	assert.Contains(t, st.FallbackCause, "device absent")
}

func TestReal_NoDeviceWithoutFallback(t *testing.T) {
	ctx := context.Background()
	primary := NoDevice()
	r := NewReal(primary, nil)
	defer r.Close()

	_, err := r.GetAttribute(ctx, first, display.KindVibrance)
	assert.ErrorIs(t, err, display.ErrDeviceAbsent)
	assert.ErrorIs(t, err, display.ErrDeviceUnavailable)

	for range 4 {
		_, err = r.GetAttribute(ctx, first, display.KindVibrance)
		assert.ErrorIs(t, err, display.ErrDeviceAbsent)
	}
	err = r.SetAttribute(ctx, first, display.KindVibrance, display.IntValue(display.KindVibrance, 1))
	assert.ErrorIs(t, err, display.ErrDeviceUnavailable)
	_, err = r.ListDisplays(ctx)
	assert.ErrorIs(t, err, display.ErrDeviceAbsent)

	assert.False(t, r.Supported(ctx))
	assert.Empty(t, r.Active())
	assert.Equal(t, 1, primary.CallCount(OpOpen), "device node reopened after a final failure")

	st := r.Stats()
	assert.False(t, st.Resolved)
	assert.Equal(t, uint64(1), st.OpenAttempts)
	assert.Contains(t, st.FallbackCause, "device absent")
}

func TestReal_PermissionDeniedMidSessionSwitches(t *testing.T) {
	ctx := context.Background()
	primary := SingleDisplay()
	fallback := newFallbackMock()
	r := NewReal(primary, fallback)
	defer r.Close()

	v, err := r.GetAttribute(ctx, first, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Raw)
	assert.Equal(t, "mock", r.Active())

	primary.WithOpError(OpGet, display.ErrPermissionDenied)

	v, err = r.GetAttribute(ctx, first, display.KindVibrance)
	require.NoError(t, err, "operation should be retried on the fallback")
	assert.Equal(t, int64(100), v.Raw)
	assert.Equal(t, "nvidia-settings", r.Active())
	assert.True(t, primary.Closed(), "primary should be released after the switch")

	primary.WithOpError(OpGet, nil)
	_, err = r.GetAttribute(ctx, first, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.CallCount(OpGet), "primary used after the switch")
}

func TestReal_OtherErrorsDoNotSwitch(t *testing.T) {
	ctx := context.Background()
	primary := SingleDisplay().WithError(first, display.KindSharpening, display.ErrUnsupported)
	fallback := newFallbackMock()
	r := NewReal(primary, fallback)
	defer r.Close()

	_, err := r.GetAttribute(ctx, first, display.KindSharpening)
	assert.ErrorIs(t, err, display.ErrUnsupported)
	assert.Equal(t, "mock", r.Active())
	assert.Zero(t, fallback.CallCount(OpOpen))
}

func TestReal_TransientOpenRetriesResolution(t *testing.T) {
	ctx := context.Background()
	primary := SingleDisplay().WithOpenError(display.ErrTransientIO)
	fallback := newFallbackMock()
	r := NewReal(primary, fallback)
	defer r.Close()

	_, err := r.ListDisplays(ctx)
	require.ErrorIs(t, err, display.ErrTransientIO)
	assert.Empty(t, r.Active())

	primary.WithOpenError(nil)
	displays, err := r.ListDisplays(ctx)
	require.NoError(t, err)
	assert.Len(t, displays, 1)
	assert.Equal(t, "mock", r.Active())
	assert.Equal(t, 2, primary.CallCount(OpOpen))
	assert.Zero(t, fallback.CallCount(OpOpen))
}

func TestReal_ConcurrentFirstUseOpensOnce(t *testing.T) {
	ctx := context.Background()
	primary := NoDevice()
	fallback := newFallbackMock()
	r := NewReal(primary, fallback)
	defer r.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetAttribute(ctx, first, display.KindVibrance)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, primary.CallCount(OpOpen))
	assert.Equal(t, 1, fallback.CallCount(OpOpen))
}

func TestReal_CloseClosesBothDrivers(t *testing.T) {
	primary := SingleDisplay()
	fallback := newFallbackMock().WithOpError(OpClose, errors.New("tool busy"))
	r := NewReal(primary, fallback)

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool busy")
	assert.True(t, primary.Closed())
	assert.True(t, fallback.Closed())

	// Idempotent.
	assert.Equal(t, err, r.Close())
	assert.Equal(t, 1, primary.CallCount(OpClose))
}

func TestReal_SwitchHookRunsOnce(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var switches []string
	r := NewReal(NoDevice(), newFallbackMock(), WithSwitchHook(func(from, to string, cause error) {
		mu.Lock()
		defer mu.Unlock()
		assert.ErrorIs(t, cause, display.ErrDeviceAbsent)
		switches = append(switches, from+"->"+to)
	}))
	defer r.Close()

	for range 3 {
		_, err := r.GetAttribute(ctx, first, display.KindVibrance)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"mock->nvidia-settings"}, switches)
}
