package nvkms

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Default session settings.
const (
	// DefaultDevicePath is the NVKMS device node.
	DefaultDevicePath = "/dev/nvidia-modeset"

	// defaultRetryBackoff is the pause before the single retry of a transient failure.
	defaultRetryBackoff = 50 * time.Millisecond

	// maxTransientRetries is the number of retries after a transient failure.
	maxTransientRetries = 1
)

// State is the lifecycle state of a session.
//
//	Closed --Open--> Open --Close--> Closed
//	Open --unrecoverable I/O--> Failed
//	Failed --Open--> Open | Failed
//	Failed --Close--> Closed
type State string

// Session states.
const (
	StateClosed State = "closed"
	StateOpen   State = "open"
	StateFailed State = "failed"
)

// Transport performs one ioctl round trip on an open device. The params
// block is read by the driver and overwritten with the reply.
type Transport interface {
	Ioctl(op Op, params []byte) error
	Close() error
}

// OpenFunc opens a transport on a device path.
type OpenFunc func(path string) (Transport, error)

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

// Config holds session configuration.
type Config struct {
	// Path is the device node. Default: /dev/nvidia-modeset.
	Path string

	// Version is the driver version string sent with AllocDevice. The
	// driver refuses the session when it does not match.
	Version string

	// DeviceID selects the GPU. Default: 0.
	DeviceID uint32

	// RetryBackoff is the pause before retrying a transient failure.
	// Default: 50ms.
	RetryBackoff time.Duration

	// Open opens the transport. Default: OpenDevice.
	Open OpenFunc

	// Logger receives session lifecycle messages. Optional.
	Logger Logger
}

// Stats holds operational statistics.
type Stats struct {
	OpsTotal     uint64
	ErrorsTotal  uint64
	RetriesTotal uint64
	OpensTotal   uint64
	LastActivity time.Time
	State        State
	LastError    string
}

// Session is an exclusive handle to the NVKMS device.
//
// Every exit path releases the handle: Close frees the device and closes
// the transport from either Open or Failed, and entering Failed closes the
// transport immediately.
type Session struct {
	cfg    Config
	logger Logger

	mu        sync.Mutex
	state     State
	transport Transport
	device    uint32
	disps     []uint32
	lastErr   error

	opsTotal     atomic.Uint64
	errorsTotal  atomic.Uint64
	retriesTotal atomic.Uint64
	opensTotal   atomic.Uint64
	lastActivity atomic.Int64
}

// NewSession creates a Closed session. No I/O happens until Open.
func NewSession(cfg Config) *Session {
	if cfg.Path == "" {
		cfg.Path = DefaultDevicePath
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Open == nil {
		cfg.Open = OpenDevice
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Session{cfg: cfg, logger: logger, state: StateClosed}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the configured device index.
func (s *Session) DeviceID() uint32 {
	return s.cfg.DeviceID
}

// DispHandles returns the disp handles allocated with the device.
func (s *Session) DispHandles() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.disps)
}

// Stats returns operational statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	state, lastErr := s.state, s.lastErr
	s.mu.Unlock()

	st := Stats{
		OpsTotal:     s.opsTotal.Load(),
		ErrorsTotal:  s.errorsTotal.Load(),
		RetriesTotal: s.retriesTotal.Load(),
		OpensTotal:   s.opensTotal.Load(),
		State:        state,
	}
	if ts := s.lastActivity.Load(); ts > 0 {
		st.LastActivity = time.Unix(0, ts)
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// Open opens the device node and allocates a device handle. Opening an
// Open session is a no-op. A failed Open leaves the state unchanged.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateOpen {
		return nil
	}
	s.releaseLocked()

	var t Transport
	err := s.retry(ctx, "open", func() error {
		var openErr error
		t, openErr = s.cfg.Open(s.cfg.Path)
		return openErr
	})
	if err != nil {
		s.noteError(err)
		return fmt.Errorf("opening %s: %w", s.cfg.Path, err)
	}

	var reply AllocDeviceReply
	req := AllocDeviceRequest{Version: s.cfg.Version, DeviceID: s.cfg.DeviceID}
	if err := s.roundTrip(ctx, t, req, &reply); err != nil {
		_ = t.Close() //nolint:errcheck // best-effort release after failed alloc
		s.noteError(err)
		return fmt.Errorf("allocating device %d: %w", s.cfg.DeviceID, err)
	}
	if reply.Status != AllocStatusSuccess {
		_ = t.Close() //nolint:errcheck // best-effort release after refused alloc
		err := &StatusError{Op: OpAllocDevice, Status: reply.Status}
		s.noteError(err)
		return err
	}

	s.transport = t
	s.device = reply.DeviceHandle
	s.disps = reply.DispHandles
	s.state = StateOpen
	s.lastErr = nil
	s.opensTotal.Add(1)

	s.logger.Info("nvkms session opened",
		"path", s.cfg.Path,
		"device", s.cfg.DeviceID,
		"disps", len(s.disps),
	)
	return nil
}

// Close frees the device handle and closes the transport. Closing a Closed
// session is a no-op. The state is Closed afterwards even if freeing fails.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}

	var errs []error
	if s.state == StateOpen && s.transport != nil {
		req := FreeDeviceRequest{DeviceHandle: s.device}
		if err := s.roundTrip(context.Background(), s.transport, req, nil); err != nil {
			errs = append(errs, fmt.Errorf("freeing device: %w", err))
		}
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing transport: %w", err))
		}
	}
	s.transport = nil
	s.disps = nil
	s.state = StateClosed

	s.logger.Info("nvkms session closed", "path", s.cfg.Path)
	return errors.Join(errs...)
}

// QueryDisp returns the connectors of a disp.
func (s *Session) QueryDisp(ctx context.Context, disp uint32) (QueryDispReply, error) {
	var reply QueryDispReply
	err := s.call(ctx, disp, func(dev uint32) Request {
		return QueryDispRequest{DeviceHandle: dev, DispHandle: disp}
	}, &reply)
	return reply, err
}

// ConnectorStatic returns the fixed facts of a connector.
func (s *Session) ConnectorStatic(ctx context.Context, disp, connector uint32) (ConnectorStaticReply, error) {
	var reply ConnectorStaticReply
	err := s.call(ctx, disp, func(dev uint32) Request {
		return ConnectorStaticRequest{DeviceHandle: dev, DispHandle: disp, ConnectorHandle: connector}
	}, &reply)
	return reply, err
}

// DpyDynamic returns the connection state and active mode of a dpy.
func (s *Session) DpyDynamic(ctx context.Context, disp, dpy uint32) (DpyDynamicReply, error) {
	var reply DpyDynamicReply
	err := s.call(ctx, disp, func(dev uint32) Request {
		return DpyDynamicRequest{DeviceHandle: dev, DispHandle: disp, DpyID: dpy}
	}, &reply)
	return reply, err
}

// GetAttribute reads a raw attribute value.
func (s *Session) GetAttribute(ctx context.Context, disp, dpy uint32, attr Attribute) (int64, error) {
	var reply AttributeValueReply
	err := s.call(ctx, disp, func(dev uint32) Request {
		return AttributeRequest{DeviceHandle: dev, DispHandle: disp, DpyID: dpy, Attribute: attr}
	}, &reply)
	return reply.Value, err
}

// SetAttribute writes a raw attribute value.
func (s *Session) SetAttribute(ctx context.Context, disp, dpy uint32, attr Attribute, value int64) error {
	return s.call(ctx, disp, func(dev uint32) Request {
		return SetAttributeRequest{DeviceHandle: dev, DispHandle: disp, DpyID: dpy, Attribute: attr, Value: value}
	}, nil)
}

// ValidValues reads the legal domain of an attribute.
func (s *Session) ValidValues(ctx context.Context, disp, dpy uint32, attr Attribute) (ValidValuesReply, error) {
	var reply ValidValuesReply
	err := s.call(ctx, disp, func(dev uint32) Request {
		return AttributeRequest{DeviceHandle: dev, DispHandle: disp, DpyID: dpy, Attribute: attr, ValidValues: true}
	}, &reply)
	return reply, err
}

// call runs one operation on an Open session. Unrecoverable errors move the
// session to Failed.
func (s *Session) call(ctx context.Context, disp uint32, build func(dev uint32) Request, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return ErrNotOpen
	}
	if !slices.Contains(s.disps, disp) {
		return fmt.Errorf("%w: %d", ErrUnknownDisp, disp)
	}

	req := build(s.device)
	err := s.roundTrip(ctx, s.transport, req, reply)
	if err == nil {
		return nil
	}
	s.noteError(err)
	if isFatal(err) {
		s.failLocked(req.Op(), err)
	}
	return err
}

// roundTrip encodes req, performs the ioctl with one transient retry, and
// decodes the reply. The parameter block is rebuilt for each attempt.
func (s *Session) roundTrip(ctx context.Context, t Transport, req Request, reply Reply) error {
	op := req.Op()
	var params []byte

	err := s.retry(ctx, op.String(), func() error {
		var encErr error
		if params, encErr = Encode(req); encErr != nil {
			return encErr
		}
		s.opsTotal.Add(1)
		s.lastActivity.Store(time.Now().UnixNano())
		return t.Ioctl(op, params)
	})
	if err != nil {
		return err
	}

	if reply == nil {
		return nil
	}
	return Decode(op, params, reply)
}

// retry runs fn, retrying once after RetryBackoff when it fails with a
// transient error.
func (s *Session) retry(ctx context.Context, what string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", display.ErrTransientIO, err)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, display.ErrTransientIO) || attempt >= maxTransientRetries {
			return err
		}

		s.retriesTotal.Add(1)
		s.logger.Debug("nvkms transient failure, retrying",
			"op", what,
			"error", err,
			"backoff", s.cfg.RetryBackoff,
		)

		timer := time.NewTimer(s.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", display.ErrTransientIO, ctx.Err())
		case <-timer.C:
		}
	}
}

// failLocked moves an Open session to Failed and releases the transport.
func (s *Session) failLocked(op Op, err error) {
	s.logger.Error("nvkms session failed",
		"op", op.String(),
		"error", err,
	)
	if s.transport != nil {
		_ = s.transport.Close() //nolint:errcheck // the session is already unusable
	}
	s.transport = nil
	s.disps = nil
	s.state = StateFailed
}

// releaseLocked drops a transport left over from a Failed session.
func (s *Session) releaseLocked() {
	if s.transport != nil {
		_ = s.transport.Close() //nolint:errcheck // stale handle
		s.transport = nil
	}
}

func (s *Session) noteError(err error) {
	s.errorsTotal.Add(1)
	s.lastErr = err
}

// isFatal reports whether err leaves the session unusable. Caller
// cancellation, unsupported attributes and unknown handles are not fatal.
func isFatal(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrEncode):
		return false
	case errors.Is(err, display.ErrProtocol),
		errors.Is(err, display.ErrDeviceUnavailable),
		errors.Is(err, display.ErrTransientIO):
		return true
	}
	return false
}
