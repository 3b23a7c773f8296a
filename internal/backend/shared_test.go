package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

func TestShared_LastHandleCloses(t *testing.T) {
	ctx := context.Background()
	mock := SingleDisplay()
	shared := NewShared(mock)

	dashboard, err := shared.Acquire()
	require.NoError(t, err)
	oneShot, err := shared.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, shared.Refs())

	// Both handles see the same backend state.
	require.NoError(t, oneShot.SetAttribute(ctx, first, display.KindVibrance, display.IntValue(display.KindVibrance, 300)))
	v, err := dashboard.GetAttribute(ctx, first, display.KindVibrance)
	require.NoError(t, err)
	assert.Equal(t, int64(300), v.Raw)

	require.NoError(t, oneShot.Close())
	assert.False(t, mock.Closed(), "backend closed while a handle is live")
	assert.Equal(t, 1, shared.Refs())

	// A released handle is unusable; closing it again is harmless.
	_, err = oneShot.GetAttribute(ctx, first, display.KindVibrance)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, oneShot.Close())
	assert.Equal(t, 1, shared.Refs())

	require.NoError(t, dashboard.Close())
	assert.True(t, mock.Closed())
	assert.Equal(t, 1, mock.CallCount(OpClose))

	_, err = shared.Acquire()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShared_HandleImplementsBackend(t *testing.T) {
	ctx := context.Background()
	shared := NewShared(MultipleDisplays(3))
	h, err := shared.Acquire()
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, h.Supported(ctx))
	displays, err := h.ListDisplays(ctx)
	require.NoError(t, err)
	require.Len(t, displays, 3)
	assert.Equal(t, "DP-0", displays[0].Name)
	assert.Equal(t, "HDMI-0", displays[1].Name)
	assert.Equal(t, "DP-1", displays[2].Name)

	rng, err := h.ValidValues(ctx, display.ID{Connector: 2}, display.KindColorRange)
	require.NoError(t, err)
	assert.Equal(t, display.ShapeEnum, rng.Shape)
}

func TestHandle_ActiveFollowsResolution(t *testing.T) {
	ctx := context.Background()
	fallback := SingleDisplay().WithName("nvidia-settings")
	shared := NewShared(NewReal(NoDevice(), fallback))

	svc, err := shared.Acquire()
	require.NoError(t, err)
	status, err := shared.Acquire()
	require.NoError(t, err)

	assert.Empty(t, status.Active(), "nothing resolved yet")

	_, err = svc.ListDisplays(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nvidia-settings", status.Active(), "every handle sees the shared strategy")
	assert.Equal(t, "nvidia-settings", svc.Active())

	require.NoError(t, status.Close())
	assert.Empty(t, status.Active())
	assert.Equal(t, "nvidia-settings", svc.Active())
	assert.False(t, fallback.Closed())

	require.NoError(t, svc.Close())
	assert.True(t, fallback.Closed())
}

func TestHandle_ActiveUsesName(t *testing.T) {
	h, err := NewShared(SingleDisplay().WithName("emulator")).Acquire()
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "emulator", h.Active())
}
