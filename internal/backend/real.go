package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/nvdisplay-core/internal/attribute"
	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// mode is the resolved strategy of a Real backend.
type mode int

const (
	modeUnresolved mode = iota
	modePrimary
	modeFallback

	// modeUnavailable is terminal: the primary is unreachable and there
	// is no fallback. cause holds the open error.
	modeUnavailable
)

// path is a driver with the registry that validates for it.
type path struct {
	driver   Driver
	registry *attribute.Registry
}

// RealStats holds strategy statistics.
type RealStats struct {
	Active        string `json:"active"`
	Resolved      bool   `json:"resolved"`
	FellBack      bool   `json:"fell_back"`
	OpenAttempts  uint64 `json:"open_attempts"`
	FallbackCause string `json:"fallback_cause,omitempty"`
}

// Real composes the device driver with the tool fallback.
//
// The primary driver is tried first. When it reports PermissionDenied or
// DeviceAbsent, at open or on any later call, Real switches to the
// fallback for the rest of its life and never probes the primary again.
// Each driver has its own attribute.Registry, so values are validated on
// both paths.
type Real struct {
	primary  path
	fallback *path
	logger   Logger
	onSwitch SwitchFunc

	mu    sync.Mutex
	mode  mode
	cause error

	openAttempts atomic.Uint64
	closeOnce    sync.Once
	closeErr     error
}

// Option configures a Real backend.
type Option func(*Real)

// WithLogger sets the logger for the backend and its registries.
func WithLogger(logger Logger) Option {
	return func(r *Real) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// SwitchFunc is told once when Real moves to the fallback. It runs with
// the strategy lock held and must not call back into the backend.
type SwitchFunc func(from, to string, cause error)

// WithSwitchHook registers fn to run when the fallback takes over.
func WithSwitchHook(fn SwitchFunc) Option {
	return func(r *Real) {
		r.onSwitch = fn
	}
}

// NewReal creates a backend over primary with an optional fallback (nil
// disables it). Nothing is opened until the first call.
func NewReal(primary, fallback Driver, opts ...Option) *Real {
	r := &Real{logger: noopLogger{}}
	for _, opt := range opts {
		opt(r)
	}

	r.primary = path{driver: primary, registry: attribute.NewRegistry(primary.Name(), primary)}
	r.primary.registry.SetLogger(r.logger)
	if fallback != nil {
		r.fallback = &path{driver: fallback, registry: attribute.NewRegistry(fallback.Name(), fallback)}
		r.fallback.registry.SetLogger(r.logger)
	}
	return r
}

// Supported implements Backend.
func (r *Real) Supported(ctx context.Context) bool {
	_, err := r.resolve(ctx)
	return err == nil
}

// Active returns the name of the driver in use, or "" before resolution.
func (r *Real) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.mode {
	case modePrimary:
		return r.primary.driver.Name()
	case modeFallback:
		return r.fallback.driver.Name()
	}
	return ""
}

// Stats returns strategy statistics.
func (r *Real) Stats() RealStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := RealStats{
		Resolved:     r.mode != modeUnresolved && r.mode != modeUnavailable,
		FellBack:     r.mode == modeFallback,
		OpenAttempts: r.openAttempts.Load(),
	}
	switch r.mode {
	case modePrimary:
		st.Active = r.primary.driver.Name()
	case modeFallback:
		st.Active = r.fallback.driver.Name()
	}
	if r.cause != nil {
		st.FallbackCause = r.cause.Error()
	}
	return st
}

// ListDisplays implements Backend.
func (r *Real) ListDisplays(ctx context.Context) ([]display.Display, error) {
	var out []display.Display
	err := r.do(ctx, func(p *path) error {
		var err error
		out, err = p.driver.ListDisplays(ctx)
		return err
	})
	return out, err
}

// GetAttribute implements Backend.
func (r *Real) GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	var v display.Value
	err := r.do(ctx, func(p *path) error {
		var err error
		v, err = p.registry.Get(ctx, id, kind)
		return err
	})
	return v, err
}

// SetAttribute implements Backend.
func (r *Real) SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	return r.do(ctx, func(p *path) error {
		return p.registry.Set(ctx, id, kind, value)
	})
}

// ValidValues implements Backend.
func (r *Real) ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	var rng display.ValueRange
	err := r.do(ctx, func(p *path) error {
		var err error
		rng, err = p.registry.Range(ctx, id, kind)
		return err
	})
	return rng, err
}

// Invalidate drops cached domains of id on both paths.
func (r *Real) Invalidate(id display.ID) {
	r.primary.registry.Invalidate(id)
	if r.fallback != nil {
		r.fallback.registry.Invalidate(id)
	}
}

// Close closes both drivers once.
func (r *Real) Close() error {
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.primary.driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", r.primary.driver.Name(), err))
		}
		if r.fallback != nil {
			if err := r.fallback.driver.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", r.fallback.driver.Name(), err))
			}
		}
		if len(errs) > 0 {
			r.closeErr = errors.Join(errs...)
		}
	})
	return r.closeErr
}

// do runs fn on the active path. If the primary path reports the device
// unreachable, the switch happens and fn runs once more on the fallback.
func (r *Real) do(ctx context.Context, fn func(*path) error) error {
	p, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	err = fn(p)
	if err == nil || p != &r.primary || !shouldFallBack(err) || r.fallback == nil {
		return err
	}

	r.mu.Lock()
	fb := r.switchLocked(ctx, err)
	r.mu.Unlock()
	return fn(fb)
}

// resolve returns the active path, opening the primary on first use.
// A transient open failure leaves the strategy unresolved so the next
// call tries again. PermissionDenied or DeviceAbsent without a fallback
// is final and the device node is not opened again.
func (r *Real) resolve(ctx context.Context) (*path, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.mode {
	case modePrimary:
		return &r.primary, nil
	case modeFallback:
		return r.fallback, nil
	case modeUnavailable:
		return nil, fmt.Errorf("opening %s: %w", r.primary.driver.Name(), r.cause)
	}

	r.openAttempts.Add(1)
	err := r.primary.driver.Open(ctx)
	if err == nil {
		r.mode = modePrimary
		r.logger.Info("display backend resolved", "driver", r.primary.driver.Name())
		return &r.primary, nil
	}
	switch {
	case !shouldFallBack(err):
		return nil, fmt.Errorf("opening %s: %w", r.primary.driver.Name(), err)
	case r.fallback == nil:
		r.mode = modeUnavailable
		r.cause = err
		r.logger.Warn("display device unavailable and no fallback configured",
			"driver", r.primary.driver.Name(),
			"cause", err,
			"remediation", display.Remediation(err),
		)
		return nil, fmt.Errorf("opening %s: %w", r.primary.driver.Name(), err)
	}
	return r.switchLocked(ctx, err), nil
}

// switchLocked makes the fallback permanent. Only the first caller closes
// the primary and opens the fallback. r.mu must be held.
func (r *Real) switchLocked(ctx context.Context, cause error) *path {
	if r.mode == modeFallback {
		return r.fallback
	}
	r.mode = modeFallback
	r.cause = cause

	r.logger.Warn("device path unavailable, switching to fallback",
		"from", r.primary.driver.Name(),
		"to", r.fallback.driver.Name(),
		"cause", cause,
		"remediation", display.Remediation(cause),
	)

	if r.onSwitch != nil {
		r.onSwitch(r.primary.driver.Name(), r.fallback.driver.Name(), cause)
	}

	if err := r.primary.driver.Close(); err != nil {
		r.logger.Debug("closing primary driver", "error", err)
	}
	if err := r.fallback.driver.Open(ctx); err != nil {
		// The mode stays; the call itself surfaces the tool error.
		r.logger.Warn("fallback driver did not open cleanly", "driver", r.fallback.driver.Name(), "error", err)
	}
	return r.fallback
}
