package attribute

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Ops are the raw, unvalidated attribute operations of one driver.
type Ops interface {
	GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error)
	SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error
	ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error)
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

type rangeKey struct {
	id   display.ID
	kind display.Kind
}

// Registry validates attribute operations against cached value domains.
//
// Thread Safety: all methods are safe for concurrent use. Two concurrent
// first Sets on the same pair may both query the domain; the result is the
// same either way.
type Registry struct {
	ops    Ops
	name   string
	logger Logger

	mu     sync.RWMutex
	ranges map[rangeKey]display.ValueRange
}

// NewRegistry creates a registry over ops. name identifies the driver in logs.
func NewRegistry(name string, ops Ops) *Registry {
	return &Registry{
		ops:    ops,
		name:   name,
		logger: noopLogger{},
		ranges: make(map[rangeKey]display.ValueRange),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Get reads the current value of kind on id.
func (r *Registry) Get(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	if !kind.Valid() {
		return display.Value{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}

	v, err := r.ops.GetAttribute(ctx, id, kind)
	if err != nil {
		r.revalidateOn(err, id, kind)
		return display.Value{}, fmt.Errorf("reading %s on %s: %w", kind, id, err)
	}
	if v.Kind != kind {
		return display.Value{}, fmt.Errorf("reading %s on %s: driver returned %s value: %w", kind, id, v.Kind, display.ErrProtocol)
	}
	return v, nil
}

// Set validates value against the domain of kind on id and writes it.
// Out-of-domain values fail with *display.InvalidValueError and are never
// passed to the driver.
func (r *Registry) Set(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}
	if value.Kind != kind {
		return fmt.Errorf("%w: %s value given for %s", display.ErrInvalidAttributeValue, value.Kind, kind)
	}

	rng, err := r.Range(ctx, id, kind)
	if err != nil {
		return err
	}
	if !rng.Contains(value.Raw) {
		r.logger.Debug("rejected out-of-range value",
			"driver", r.name,
			"display", id.String(),
			"kind", string(kind),
			"value", value.Raw,
			"range", rng.String(),
		)
		return &display.InvalidValueError{Display: id, Kind: kind, Value: value.Raw, Range: rng}
	}

	if err := r.ops.SetAttribute(ctx, id, kind, value); err != nil {
		r.revalidateOn(err, id, kind)
		return fmt.Errorf("writing %s=%s on %s: %w", kind, value, id, err)
	}
	return nil
}

// Range returns the domain of kind on id, querying the driver only the
// first time.
func (r *Registry) Range(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	if !kind.Valid() {
		return display.ValueRange{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}

	key := rangeKey{id: id, kind: kind}
	r.mu.RLock()
	rng, ok := r.ranges[key]
	r.mu.RUnlock()
	if ok {
		return rng, nil
	}

	rng, err := r.ops.ValidValues(ctx, id, kind)
	if err != nil {
		r.revalidateOn(err, id, kind)
		return display.ValueRange{}, fmt.Errorf("querying %s range on %s: %w", kind, id, err)
	}
	if rng.Shape != kind.Shape() {
		return display.ValueRange{}, fmt.Errorf("querying %s range on %s: got %s domain: %w", kind, id, rng.Shape, display.ErrProtocol)
	}

	r.mu.Lock()
	r.ranges[key] = rng
	r.mu.Unlock()

	r.logger.Debug("cached attribute range",
		"driver", r.name,
		"display", id.String(),
		"kind", string(kind),
		"range", rng.String(),
	)
	return rng, nil
}

// Invalidate drops every cached domain of id (e.g., after the display was
// unplugged).
func (r *Registry) Invalidate(id display.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.ranges {
		if key.id == id {
			delete(r.ranges, key)
		}
	}
}

// Reset drops every cached domain.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.ranges)
}

// CachedRanges returns the number of cached domains.
func (r *Registry) CachedRanges() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ranges)
}

// revalidateOn drops the cached domain of a pair after a protocol error.
func (r *Registry) revalidateOn(err error, id display.ID, kind display.Kind) {
	if !errors.Is(err, display.ErrProtocol) {
		return
	}
	r.mu.Lock()
	_, had := r.ranges[rangeKey{id: id, kind: kind}]
	delete(r.ranges, rangeKey{id: id, kind: kind})
	r.mu.Unlock()

	if had {
		r.logger.Warn("dropped cached range after protocol error",
			"driver", r.name,
			"display", id.String(),
			"kind", string(kind),
			"error", err,
		)
	}
}
