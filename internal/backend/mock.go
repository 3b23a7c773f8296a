package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/nvdisplay-core/internal/attribute"
	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Mock operation names recorded in the call log.
const (
	OpOpen     = "open"
	OpList     = "list"
	OpGet      = "get"
	OpSet      = "set"
	OpValid    = "valid_values"
	OpClose    = "close"
	OpSupports = "supported"
)

// Call is one recorded Mock invocation.
type Call struct {
	Op      string
	Display display.ID
	Kind    display.Kind
	Value   display.Value
}

type mockKey struct {
	id   display.ID
	kind display.Kind
}

// Mock is a deterministic in-memory Driver and Backend for tests. It
// records every call. Values start at each attribute's default and the
// domains follow the attribute descriptors unless overridden.
//
// Used directly as a Backend, SetAttribute validates against the domain
// after recording the call. Wrapped by Real, the registry validates first
// and out-of-range writes never reach the Mock.
type Mock struct {
	name string

	mu       sync.Mutex
	displays []display.Display
	values   map[mockKey]int64
	ranges   map[mockKey]display.ValueRange
	errs     map[mockKey]error
	opErrs   map[string]error
	allErr   error
	openErr  error
	calls    []Call
	closed   bool
}

// NewMock creates a Mock with the given displays.
func NewMock(name string, displays ...display.Display) *Mock {
	return &Mock{
		name:     name,
		displays: displays,
		values:   make(map[mockKey]int64),
		ranges:   make(map[mockKey]display.ValueRange),
		errs:     make(map[mockKey]error),
		opErrs:   make(map[string]error),
	}
}

// SingleDisplay returns a Mock with one connected DP display, ID 0:0.
func SingleDisplay() *Mock {
	return MultipleDisplays(1)
}

// MultipleDisplays returns a Mock with n connected displays, alternating
// DP and HDMI connectors.
func MultipleDisplays(n int) *Mock {
	displays := make([]display.Display, 0, n)
	var dp, hdmi uint32
	for i := range n {
		st := display.ConnectorStatic{Type: display.ConnectorDP, TypeIndex: dp, PhysicalIndex: uint32(i), IsDP: true}
		if i%2 == 1 {
			st = display.ConnectorStatic{Type: display.ConnectorHDMI, TypeIndex: hdmi, PhysicalIndex: uint32(i)}
			hdmi++
		} else {
			dp++
		}
		displays = append(displays, display.Display{
			ID:     display.ID{Connector: uint32(i)},
			Name:   st.Name(),
			Static: st,
			Dynamic: display.ConnectorDynamic{
				Connected:  true,
				ActiveMode: &display.Mode{Width: 2560, Height: 1440, RefreshMilliHz: 144000},
				Monitor:    fmt.Sprintf("Mock Monitor %d", i),
			},
		})
	}
	return NewMock("mock", displays...)
}

// NoDevice returns a Mock that behaves like a host without a device:
// every operation fails with display.ErrDeviceAbsent.
func NoDevice() *Mock {
	m := NewMock("mock")
	m.allErr = fmt.Errorf("%w: no device node", display.ErrDeviceAbsent)
	return m
}

// WithName sets the driver name reported by Name.
func (m *Mock) WithName(name string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithValue sets the current value of kind on id.
func (m *Mock) WithValue(id display.ID, kind display.Kind, raw int64) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[mockKey{id, kind}] = raw
	return m
}

// WithRange overrides the domain of kind on id.
func (m *Mock) WithRange(id display.ID, kind display.Kind, rng display.ValueRange) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges[mockKey{id, kind}] = rng
	return m
}

// WithError makes every operation on kind of id fail with err.
func (m *Mock) WithError(id display.ID, kind display.Kind, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[mockKey{id, kind}] = err
	return m
}

// WithOpError makes every call of op fail with err (nil clears it).
func (m *Mock) WithOpError(op string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.opErrs, op)
	} else {
		m.opErrs[op] = err
	}
	return m
}

// WithOpenError makes Open fail with err.
func (m *Mock) WithOpenError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
	return m
}

// Calls returns a copy of the call log.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times op was called.
func (m *Mock) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Name implements Driver.
func (m *Mock) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Supported implements Backend.
func (m *Mock) Supported(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpSupports})
	return m.allErr == nil && m.openErr == nil
}

// Open implements Driver.
func (m *Mock) Open(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpOpen})
	if m.allErr != nil {
		return m.allErr
	}
	if m.openErr != nil {
		return m.openErr
	}
	return m.opErrs[OpOpen]
}

// ListDisplays implements Driver and Backend.
func (m *Mock) ListDisplays(context.Context) ([]display.Display, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpList})
	if err := m.failure(OpList, mockKey{}); err != nil {
		return nil, err
	}
	out := make([]display.Display, len(m.displays))
	copy(out, m.displays)
	return out, nil
}

// GetAttribute implements Driver and Backend.
func (m *Mock) GetAttribute(_ context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpGet, Display: id, Kind: kind})
	key := mockKey{id, kind}
	if err := m.check(OpGet, key); err != nil {
		return display.Value{}, err
	}
	if raw, ok := m.values[key]; ok {
		return display.IntValue(kind, raw), nil
	}
	return display.IntValue(kind, m.rangeFor(key).Default), nil
}

// SetAttribute implements Driver and Backend.
func (m *Mock) SetAttribute(_ context.Context, id display.ID, kind display.Kind, value display.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpSet, Display: id, Kind: kind, Value: value})
	key := mockKey{id, kind}
	if err := m.check(OpSet, key); err != nil {
		return err
	}
	rng := m.rangeFor(key)
	if !rng.Contains(value.Raw) {
		return &display.InvalidValueError{Display: id, Kind: kind, Value: value.Raw, Range: rng}
	}
	m.values[key] = value.Raw
	return nil
}

// ValidValues implements Driver and Backend.
func (m *Mock) ValidValues(_ context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpValid, Display: id, Kind: kind})
	key := mockKey{id, kind}
	if err := m.check(OpValid, key); err != nil {
		return display.ValueRange{}, err
	}
	return m.rangeFor(key), nil
}

// Close implements Driver and Backend.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(Call{Op: OpClose})
	m.closed = true
	return m.opErrs[OpClose]
}

func (m *Mock) record(c Call) {
	m.calls = append(m.calls, c)
}

// failure returns the configured error for op, if any.
func (m *Mock) failure(op string, key mockKey) error {
	if m.allErr != nil {
		return m.allErr
	}
	if err, ok := m.opErrs[op]; ok {
		return err
	}
	if err, ok := m.errs[key]; ok && key.kind != "" {
		return err
	}
	return nil
}

// check resolves errors and display existence for an attribute op.
func (m *Mock) check(op string, key mockKey) error {
	if err := m.failure(op, key); err != nil {
		return err
	}
	if !key.kind.Valid() {
		return fmt.Errorf("%w: %q", display.ErrInvalidKind, key.kind)
	}
	for _, d := range m.displays {
		if d.ID == key.id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", display.ErrDisplayNotFound, key.id)
}

func (m *Mock) rangeFor(key mockKey) display.ValueRange {
	if rng, ok := m.ranges[key]; ok {
		return rng
	}
	desc, _ := attribute.Describe(key.kind)
	return desc.Fallback
}
