package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/backend"
	"github.com/nerrad567/nvdisplay-core/internal/cache"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/hotplug"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/influxdb"
)

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

// Telemetry receives attribute samples. *influxdb.Client implements it.
type Telemetry interface {
	WriteAttributeSample(s influxdb.AttributeSample)
	WriteSetSample(s influxdb.SetSample)
	WriteAvailability(available bool, displays int, at time.Time)
}

// Publisher publishes retained attribute state. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// Config holds service configuration.
type Config struct {
	// Backend reaches the hardware. Required; the service closes it.
	Backend backend.Backend

	// MaxAge is the cache freshness window. Default: 5s.
	MaxAge time.Duration

	// PollInterval and Debounce configure the hotplug monitor.
	// Defaults: 1s and 2s.
	PollInterval time.Duration
	Debounce     time.Duration

	// Audit records set attempts and hotplug changes. Optional.
	Audit *audit.Recorder

	// Telemetry receives samples. Optional.
	Telemetry Telemetry

	// Publisher receives attribute state. Optional.
	Publisher Publisher

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Logger is optional.
	Logger Logger
}

// Origin identifies who asked for a write.
type Origin struct {
	Source string // audit.SourceCLI, audit.SourceAPI, ...
	Actor  string
}

// Reading is one attribute of a display as returned by Snapshot.
type Reading struct {
	Kind       display.Kind  `json:"kind"`
	Value      display.Value `json:"value"`
	Label      string        `json:"label"`
	ObservedAt time.Time     `json:"observed_at,omitzero"`
	Stale      bool          `json:"stale"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

// Info summarises the service for status output.
type Info struct {
	Backend string         `json:"backend"`
	Status  hotplug.Status `json:"status"`
	Cache   cache.Stats    `json:"cache"`
	Audit   bool           `json:"audit"`
}

// Service is the collaborator facade over backend, cache and hotplug
// monitor.
//
// Thread Safety: all methods are safe for concurrent use.
type Service struct {
	backend   backend.Backend
	cache     *cache.Cache
	monitor   *hotplug.Monitor
	audit     *audit.Recorder
	telemetry Telemetry
	publisher Publisher
	now       func() time.Time
	logger    Logger

	displaysMu sync.RWMutex
	displays   []display.Display

	listenersMu  sync.RWMutex
	listeners    map[int]EventFunc
	nextListener int

	closeOnce sync.Once
	closeErr  error
}

// New creates a service. Call Start to begin hotplug polling.
func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("control: backend is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	s := &Service{
		backend:   cfg.Backend,
		audit:     cfg.Audit,
		telemetry: cfg.Telemetry,
		publisher: cfg.Publisher,
		now:       cfg.Now,
		logger:    cfg.Logger,
		listeners: make(map[int]EventFunc),
	}
	s.cache = cache.New(cfg.Backend, cache.Config{
		MaxAge: cfg.MaxAge,
		Now:    cfg.Now,
		Logger: cfg.Logger,
	})
	s.monitor = hotplug.NewMonitor(hotplug.MonitorConfig{
		Prober:   s,
		Interval: cfg.PollInterval,
		Debounce: cfg.Debounce,
		Now:      cfg.Now,
		Logger:   cfg.Logger,
	})
	s.monitor.OnChange(s.statusChanged)
	return s, nil
}

// Start begins hotplug polling until ctx is cancelled or Close is called.
func (s *Service) Start(ctx context.Context) {
	s.monitor.Start(ctx)
}

// Monitor returns the hotplug monitor, for wiring a status reporter.
func (s *Service) Monitor() *hotplug.Monitor {
	return s.monitor
}

// Close stops polling, waits for background refreshes and closes the
// backend. Later calls return the first result.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.monitor.Stop()
		s.cache.Wait()
		if err := s.backend.Close(); err != nil {
			s.closeErr = fmt.Errorf("closing backend: %w", err)
		}
	})
	return s.closeErr
}

// ListDisplays lists the displays of the backend and remembers them for
// name lookups.
func (s *Service) ListDisplays(ctx context.Context) ([]display.Display, error) {
	displays, err := s.backend.ListDisplays(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing displays: %w", err)
	}
	s.displaysMu.Lock()
	s.displays = displays
	s.displaysMu.Unlock()
	return displays, nil
}

// Display resolves ref to a display. ref is either an ID ("0:1", "1") or
// a connector name ("DP-0", case-insensitive).
func (s *Service) Display(ctx context.Context, ref string) (display.Display, error) {
	if d, ok := s.lookup(ref); ok {
		return d, nil
	}
	if _, err := s.ListDisplays(ctx); err != nil {
		return display.Display{}, err
	}
	if d, ok := s.lookup(ref); ok {
		return d, nil
	}
	return display.Display{}, fmt.Errorf("%w: %q", display.ErrDisplayNotFound, ref)
}

// Resolve is Display returning only the ID.
func (s *Service) Resolve(ctx context.Context, ref string) (display.ID, error) {
	d, err := s.Display(ctx, ref)
	if err != nil {
		return display.ID{}, err
	}
	return d.ID, nil
}

func (s *Service) lookup(ref string) (display.Display, bool) {
	ref = strings.TrimSpace(ref)
	id, idErr := display.ParseID(ref)

	s.displaysMu.RLock()
	defer s.displaysMu.RUnlock()
	for _, d := range s.displays {
		if (idErr == nil && d.ID == id) || strings.EqualFold(d.Name, ref) {
			return d, true
		}
	}
	return display.Display{}, false
}

func (s *Service) nameOf(id display.ID) string {
	s.displaysMu.RLock()
	defer s.displaysMu.RUnlock()
	for _, d := range s.displays {
		if d.ID == id {
			return d.Name
		}
	}
	return ""
}

// GetAttribute reads kind on id through the cache.
func (s *Service) GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (cache.Result, error) {
	if !kind.Valid() {
		return cache.Result{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}
	res, err := s.cache.Get(ctx, id, kind)
	if err != nil {
		return cache.Result{}, err
	}
	if s.telemetry != nil {
		s.telemetry.WriteAttributeSample(influxdb.AttributeSample{
			DisplayID: id.String(),
			Display:   s.nameOf(id),
			Attribute: string(kind),
			Value:     res.Value.Raw,
			Stale:     res.Stale,
			Backend:   s.Backend(),
			At:        res.ObservedAt,
		})
	}
	return res, nil
}

// ValidValues returns the legal domain of kind on id.
func (s *Service) ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	if !kind.Valid() {
		return display.ValueRange{}, fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}
	return s.backend.ValidValues(ctx, id, kind)
}

// SetAttribute writes value as the system.
func (s *Service) SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	return s.SetAttributeAs(ctx, Origin{Source: audit.SourceSystem}, id, kind, value)
}

// SetAttributeAs writes value and records the attempt on behalf of
// origin. Out-of-range values are rejected by the backend before any
// write and are audited as rejected.
func (s *Service) SetAttributeAs(ctx context.Context, origin Origin, id display.ID, kind display.Kind, value display.Value) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}
	value.Kind = kind

	var previous *display.Value
	if prev, ok := s.cache.Peek(id, kind); ok {
		previous = &prev.Value
	}

	start := s.now()
	err := s.cache.Set(ctx, id, kind, value)
	latency := s.now().Sub(start)
	backendName := s.Backend()

	// Record even when the caller's context has expired.
	recordCtx := context.WithoutCancel(ctx)
	if aerr := s.audit.RecordSet(recordCtx, audit.SetAttempt{
		Display:  id,
		Kind:     kind,
		Value:    value,
		Previous: previous,
		Backend:  backendName,
		Source:   origin.Source,
		Actor:    origin.Actor,
		Err:      err,
	}); aerr != nil {
		s.logger.Warn("audit write failed", "error", aerr)
	}

	if s.telemetry != nil {
		s.telemetry.WriteSetSample(influxdb.SetSample{
			DisplayID: id.String(),
			Attribute: string(kind),
			Value:     value.Raw,
			Outcome:   outcome(err),
			Backend:   backendName,
			Latency:   latency,
			At:        start,
		})
	}

	if err != nil {
		s.logger.Debug("attribute set failed",
			"display", id.String(),
			"kind", string(kind),
			"value", value.Raw,
			"error", err,
		)
		return err
	}

	s.logger.Info("attribute set",
		"display", id.String(),
		"kind", string(kind),
		"value", value.String(),
		"source", origin.Source,
	)
	change := AttributeChange{
		DisplayID: id.String(),
		Display:   s.nameOf(id),
		Kind:      kind,
		Value:     value,
		Label:     value.String(),
		Previous:  previous,
		Source:    origin.Source,
	}
	s.publishState(change)
	s.emit(Event{Type: EventAttributeChanged, Timestamp: s.now().UTC(), Data: change})
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return audit.OutcomeOK
	case errors.Is(err, display.ErrInvalidAttributeValue):
		return audit.OutcomeRejected
	default:
		return audit.OutcomeFailed
	}
}

// Snapshot reads every attribute of id concurrently. Per-attribute
// failures are reported in the reading; only a cancelled context fails
// the whole snapshot.
func (s *Service) Snapshot(ctx context.Context, id display.ID) ([]Reading, error) {
	kinds := display.Kinds()
	readings := make([]Reading, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			r := Reading{Kind: kind}
			res, err := s.GetAttribute(gctx, id, kind)
			switch {
			case err == nil:
				r.Value = res.Value
				r.Label = res.Value.String()
				r.ObservedAt = res.ObservedAt
				r.Stale = res.Stale
			case errors.Is(err, context.Canceled):
				return err
			default:
				r.Error = err.Error()
				r.ErrorCode = display.ErrorCode(err)
			}
			readings[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reading attributes of %s: %w", id, err)
	}
	return readings, nil
}

// Supported reports whether any path to the hardware works.
func (s *Service) Supported(ctx context.Context) bool {
	return s.backend.Supported(ctx)
}

// Status returns the debounced hotplug status.
func (s *Service) Status() hotplug.Status {
	return s.monitor.Status()
}

// Backend returns the name of the active backend, or "" before the
// first call resolves it.
func (s *Service) Backend() string {
	switch b := s.backend.(type) {
	case interface{ Active() string }:
		return b.Active()
	case interface{ Name() string }:
		return b.Name()
	}
	return ""
}

// Info returns a status summary.
func (s *Service) Info() Info {
	return Info{
		Backend: s.Backend(),
		Status:  s.Status(),
		Cache:   s.cache.Stats(),
		Audit:   s.audit.Enabled(),
	}
}

// statusChanged runs on the monitor goroutine after a debounced change.
func (s *Service) statusChanged(st hotplug.Status) {
	s.displaysMu.RLock()
	known := make([]display.ID, 0, len(s.displays))
	for _, d := range s.displays {
		known = append(known, d.ID)
	}
	s.displaysMu.RUnlock()

	// Connector IDs are only stable within one device session.
	s.cache.InvalidateAll()
	if inv, ok := s.backend.(interface{ Invalidate(display.ID) }); ok {
		for _, id := range known {
			inv.Invalidate(id)
		}
	}

	ctx := context.Background()
	if err := s.audit.RecordHotplug(ctx, string(st.Current), st.Displays, st.Reason); err != nil {
		s.logger.Warn("audit write failed", "error", err)
	}
	if s.telemetry != nil {
		s.telemetry.WriteAvailability(st.Current == hotplug.Available, st.Displays, st.ChangedAt)
	}
	s.emit(Event{Type: EventHotplugStatusChanged, Timestamp: s.now().UTC(), Data: st})
}

// SwitchHook returns a backend.SwitchFunc that audits the move to the
// fallback path.
func SwitchHook(rec *audit.Recorder, logger Logger) backend.SwitchFunc {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(from, to string, cause error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rec.RecordFallback(ctx, from, to, cause); err != nil {
			logger.Warn("audit write failed", "error", err)
		}
	}
}
