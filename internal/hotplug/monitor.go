package hotplug

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// DefaultPollInterval is the probe period of the Monitor.
const DefaultPollInterval = time.Second

// Prober lists the displays currently visible to the backend.
type Prober interface {
	ListDisplays(ctx context.Context) ([]display.Display, error)
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

// ChangeFunc is called after the debounced availability changes.
type ChangeFunc func(Status)

// MonitorConfig holds monitor configuration.
type MonitorConfig struct {
	// Prober is polled for displays. Required.
	Prober Prober

	// Interval is the poll period. Default: 1s.
	Interval time.Duration

	// Debounce is the tracker threshold. Default: 2s.
	Debounce time.Duration

	// ProbeTimeout bounds one probe. Default: Interval.
	ProbeTimeout time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Logger is optional.
	Logger Logger
}

// Monitor polls the backend on a slow timer and feeds the Tracker. The
// raw probe is available when listing succeeds and at least one display
// is connected.
type Monitor struct {
	prober   Prober
	tracker  *Tracker
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   Logger

	listenersMu sync.RWMutex
	listeners   []ChangeFunc

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMonitor creates a monitor. Call Start to begin polling.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = cfg.Interval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Monitor{
		prober:   cfg.Prober,
		tracker:  NewTracker(cfg.Debounce),
		interval: cfg.Interval,
		timeout:  cfg.ProbeTimeout,
		now:      cfg.Now,
		logger:   cfg.Logger,
		done:     make(chan struct{}),
	}
}

// OnChange registers fn to run after each change of Current.
func (m *Monitor) OnChange(fn ChangeFunc) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the debounced status.
func (m *Monitor) Status() Status {
	return m.tracker.Status()
}

// Tracker returns the underlying tracker.
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Start probes once and then polls until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop ends polling and waits for the loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// Poll takes one probe and feeds it to the tracker.
func (m *Monitor) Poll(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	changed := m.tracker.Record(m.probe(ctx), m.now())
	st := m.tracker.Status()

	if changed {
		m.logger.Info("display availability changed",
			"current", string(st.Current),
			"displays", st.Displays,
			"reason", st.Reason,
		)
		m.notify(st)
	}
	return st
}

func (m *Monitor) probe(ctx context.Context) Probe {
	displays, err := m.prober.ListDisplays(ctx)
	if err != nil {
		m.logger.Debug("hotplug probe failed", "error", err)
		return Probe{Reason: display.ErrorCode(err)}
	}

	connected := 0
	for _, d := range displays {
		if d.Dynamic.Connected {
			connected++
		}
	}
	if connected == 0 {
		return Probe{Reason: "no connected display"}
	}
	return Probe{Available: true, Displays: connected}
}

func (m *Monitor) notify(st Status) {
	m.listenersMu.RLock()
	listeners := append([]ChangeFunc(nil), m.listeners...)
	m.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}
