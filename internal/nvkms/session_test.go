package nvkms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

func newTestSession(f *fakeDevice) *Session {
	return NewSession(Config{
		Version:      testVersion,
		RetryBackoff: time.Millisecond,
		Open:         f.Open,
	})
}

func openTestSession(t *testing.T, f *fakeDevice) *Session {
	t.Helper()
	s := newTestSession(f)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestSession_Lifecycle(t *testing.T) {
	f := newFakeDevice()
	s := newTestSession(f)

	if s.State() != StateClosed {
		t.Fatalf("initial state = %s, want closed", s.State())
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("state after Open = %s, want open", s.State())
	}
	if got := s.DispHandles(); len(got) != 1 || got[0] != testDisp {
		t.Errorf("DispHandles() = %v", got)
	}

	// Open on an open session is a no-op.
	calls := f.CallCount()
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	if f.CallCount() != calls {
		t.Error("second Open() performed I/O")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state after Close = %s, want closed", s.State())
	}
	if f.LastCall() != OpFreeDevice {
		t.Errorf("last call = %s, want FreeDevice", f.LastCall())
	}
	if !f.closed {
		t.Error("transport not closed")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on closed session error = %v", err)
	}
}

func TestSession_OpWhileClosedDoesNoIO(t *testing.T) {
	f := newFakeDevice()
	s := newTestSession(f)

	_, err := s.GetAttribute(context.Background(), testDisp, testDpyDP, AttrDigitalVibrance)
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("GetAttribute() error = %v, want ErrNotOpen", err)
	}
	if !errors.Is(err, display.ErrDeviceUnavailable) {
		t.Error("ErrNotOpen should match ErrDeviceUnavailable")
	}
	if f.CallCount() != 0 {
		t.Errorf("calls = %d, want 0", f.CallCount())
	}
}

func TestSession_VersionMismatch(t *testing.T) {
	f := newFakeDevice()
	f.version = "999.0"
	s := newTestSession(f)

	err := s.Open(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Open() error = %v, want *StatusError", err)
	}
	if statusErr.Status != AllocStatusVersionMismatch {
		t.Errorf("Status = %s", statusErr.Status)
	}
	if !errors.Is(err, display.ErrProtocol) {
		t.Error("version mismatch should match ErrProtocol")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if !f.closed {
		t.Error("transport should be released after refused alloc")
	}
}

func TestSession_OpenPermissionDenied(t *testing.T) {
	s := NewSession(Config{
		Version: testVersion,
		Open: func(string) (Transport, error) {
			return nil, display.ErrPermissionDenied
		},
	})
	err := s.Open(context.Background())
	if !errors.Is(err, display.ErrPermissionDenied) {
		t.Fatalf("Open() error = %v, want ErrPermissionDenied", err)
	}
	if s.Stats().RetriesTotal != 0 {
		t.Error("permission denied must not be retried")
	}
}

func TestSession_TransientRetry(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)

	f.failures = []error{display.ErrTransientIO}
	got, err := s.GetAttribute(context.Background(), testDisp, testDpyDP, AttrCurrentDithering)
	if err != nil {
		t.Fatalf("GetAttribute() error = %v", err)
	}
	if got != 1 {
		t.Errorf("GetAttribute() = %d, want 1", got)
	}
	if s.Stats().RetriesTotal != 1 {
		t.Errorf("RetriesTotal = %d, want 1", s.Stats().RetriesTotal)
	}
	if s.State() != StateOpen {
		t.Errorf("state = %s, want open", s.State())
	}
}

func TestSession_TransientExhaustedFails(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)

	f.failures = []error{display.ErrTransientIO, display.ErrTransientIO}
	_, err := s.GetAttribute(context.Background(), testDisp, testDpyDP, AttrDigitalVibrance)
	if !errors.Is(err, display.ErrTransientIO) {
		t.Fatalf("GetAttribute() error = %v, want ErrTransientIO", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want failed", s.State())
	}
	if !f.closed {
		t.Error("transport should be released on failure")
	}

	// Any op while Failed returns ErrNotOpen without I/O.
	calls := f.CallCount()
	if _, err := s.GetAttribute(context.Background(), testDisp, testDpyDP, AttrDigitalVibrance); !errors.Is(err, ErrNotOpen) {
		t.Errorf("op while failed error = %v, want ErrNotOpen", err)
	}
	if f.CallCount() != calls {
		t.Error("op while failed performed I/O")
	}

	// Failed -> Open.
	f.closed = false
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if s.State() != StateOpen {
		t.Errorf("state after reopen = %s, want open", s.State())
	}
}

func TestSession_MalformedReplyFails(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)

	f.corrupt = func(op Op, reply []byte) {
		if op == OpQueryDpyDynamicData {
			reply[0] = 7
		}
	}
	_, err := s.DpyDynamic(context.Background(), testDisp, testDpyDP)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("DpyDynamic() error = %v, want ErrDecode", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
}

func TestSession_UnknownDisp(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)

	calls := f.CallCount()
	if _, err := s.QueryDisp(context.Background(), 0xdead); !errors.Is(err, ErrUnknownDisp) {
		t.Errorf("QueryDisp() error = %v, want ErrUnknownDisp", err)
	}
	if f.CallCount() != calls {
		t.Error("unknown disp performed I/O")
	}
	if s.State() != StateOpen {
		t.Errorf("state = %s, want open", s.State())
	}
}

func TestSession_CancelledContextIsNotFatal(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.GetAttribute(ctx, testDisp, testDpyDP, AttrDigitalVibrance)
	if !errors.Is(err, display.ErrTransientIO) || !errors.Is(err, context.Canceled) {
		t.Fatalf("GetAttribute() error = %v, want transient + canceled", err)
	}
	if s.State() != StateOpen {
		t.Errorf("state = %s, want open", s.State())
	}
}

func TestSession_Queries(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)
	ctx := context.Background()

	disp, err := s.QueryDisp(ctx, testDisp)
	if err != nil {
		t.Fatalf("QueryDisp() error = %v", err)
	}
	if len(disp.ConnectorHandles) != 2 {
		t.Fatalf("connectors = %v", disp.ConnectorHandles)
	}
	if disp.ConnectedDpys != testDpyDP {
		t.Errorf("ConnectedDpys = %#x, want %#x", disp.ConnectedDpys, testDpyDP)
	}

	static, err := s.ConnectorStatic(ctx, testDisp, testConnHDM)
	if err != nil {
		t.Fatalf("ConnectorStatic() error = %v", err)
	}
	if static.Type != ConnectorTypeHDMI || static.DpyID != testDpyHDMI || static.PhysicalIndex != 1 {
		t.Errorf("ConnectorStatic() = %+v", static)
	}

	dyn, err := s.DpyDynamic(ctx, testDisp, testDpyDP)
	if err != nil {
		t.Fatalf("DpyDynamic() error = %v", err)
	}
	if !dyn.Connected || dyn.Width != 2560 || dyn.MonitorName != "DELL S2721DGF" {
		t.Errorf("DpyDynamic() = %+v", dyn)
	}
}

func TestSession_SetThenGet(t *testing.T) {
	f := newFakeDevice()
	s := openTestSession(t, f)
	ctx := context.Background()

	if err := s.SetAttribute(ctx, testDisp, testDpyDP, AttrDigitalVibrance, -300); err != nil {
		t.Fatalf("SetAttribute() error = %v", err)
	}
	got, err := s.GetAttribute(ctx, testDisp, testDpyDP, AttrDigitalVibrance)
	if err != nil {
		t.Fatalf("GetAttribute() error = %v", err)
	}
	if got != -300 {
		t.Errorf("GetAttribute() = %d, want -300", got)
	}

	vv, err := s.ValidValues(ctx, testDisp, testDpyDP, AttrDigitalVibrance)
	if err != nil {
		t.Fatalf("ValidValues() error = %v", err)
	}
	if vv.Min != -1024 || vv.Max != 1023 || vv.Type != ValueTypeRange {
		t.Errorf("ValidValues() = %+v", vv)
	}

	st := s.Stats()
	if st.OpsTotal == 0 || st.State != StateOpen || st.LastActivity.IsZero() {
		t.Errorf("Stats() = %+v", st)
	}
}
