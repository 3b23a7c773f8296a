package backend

import (
	"context"
	"sync"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Shared gives reference-counted ownership of one Backend. Independent
// consumers (the API server, a one-shot command, the status reporter)
// each Acquire a handle; the inner backend is closed when the last handle
// is closed.
type Shared struct {
	inner Backend

	mu     sync.Mutex
	refs   int
	closed bool
	err    error
}

// NewShared wraps b. The caller should Acquire before use; a Shared with
// no handles never closes b on its own.
func NewShared(b Backend) *Shared {
	return &Shared{inner: b}
}

// Acquire returns a new handle. It fails with ErrClosed once the last
// handle has been released.
func (s *Shared) Acquire() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.refs++
	return &Handle{shared: s}, nil
}

// Refs returns the number of live handles.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Inner returns the wrapped backend.
func (s *Shared) Inner() Backend {
	return s.inner
}

func (s *Shared) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.refs > 0 || s.closed {
		return nil
	}
	s.closed = true
	s.err = s.inner.Close()
	return s.err
}

// Handle is one consumer's reference to a Shared backend. It implements
// Backend; Close releases only this reference.
type Handle struct {
	shared *Shared

	once     sync.Once
	mu       sync.RWMutex
	released bool
	err      error
}

var _ Backend = (*Handle)(nil)

func (h *Handle) backend() (Backend, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return nil, ErrClosed
	}
	return h.shared.inner, nil
}

// Active reports the driver in use by the shared backend: Real's resolved
// driver, or the Name of any other backend. It is "" once the handle is
// released.
func (h *Handle) Active() string {
	b, err := h.backend()
	if err != nil {
		return ""
	}
	switch b := b.(type) {
	case interface{ Active() string }:
		return b.Active()
	case interface{ Name() string }:
		return b.Name()
	}
	return ""
}

// Supported implements Backend.
func (h *Handle) Supported(ctx context.Context) bool {
	b, err := h.backend()
	if err != nil {
		return false
	}
	return b.Supported(ctx)
}

// ListDisplays implements Backend.
func (h *Handle) ListDisplays(ctx context.Context) ([]display.Display, error) {
	b, err := h.backend()
	if err != nil {
		return nil, err
	}
	return b.ListDisplays(ctx)
}

// GetAttribute implements Backend.
func (h *Handle) GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	b, err := h.backend()
	if err != nil {
		return display.Value{}, err
	}
	return b.GetAttribute(ctx, id, kind)
}

// SetAttribute implements Backend.
func (h *Handle) SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	b, err := h.backend()
	if err != nil {
		return err
	}
	return b.SetAttribute(ctx, id, kind, value)
}

// ValidValues implements Backend.
func (h *Handle) ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	b, err := h.backend()
	if err != nil {
		return display.ValueRange{}, err
	}
	return b.ValidValues(ctx, id, kind)
}

// Close releases this handle. Later calls return the first result.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		h.err = h.shared.release()
	})
	return h.err
}
