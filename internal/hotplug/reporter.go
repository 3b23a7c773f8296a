package hotplug

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Status topics.
const (
	// StatusTopic carries the retained service status.
	StatusTopic = "nvdisplay/status"
)

// ServiceState is the value of the "status" field on StatusTopic.
type ServiceState string

// Service states.
const (
	StateStarting ServiceState = "starting"
	StateHealthy  ServiceState = "healthy"
	StateDegraded ServiceState = "degraded"
	StateStopping ServiceState = "stopping"
	StateOffline  ServiceState = "offline"
)

// Publisher is the interface for publishing status messages.
// This is typically implemented by an MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatusSource reports the debounced availability.
type StatusSource interface {
	Status() Status
}

// StatusMessage is the payload published on StatusTopic.
type StatusMessage struct {
	Status       ServiceState `json:"status"`
	Availability Availability `json:"availability"`
	Displays     int          `json:"displays"`
	Backend      string       `json:"backend,omitempty"`
	Version      string       `json:"version,omitempty"`
	Reason       string       `json:"reason,omitempty"`
	UptimeSec    int64        `json:"uptime_seconds"`
	Timestamp    time.Time    `json:"timestamp"`
}

// ReporterConfig holds reporter configuration.
type ReporterConfig struct {
	// Version is the service version.
	Version string

	// Interval is how often to publish. Default: 30s.
	Interval time.Duration

	// Publisher receives the messages. Optional; nil disables publishing.
	Publisher Publisher

	// Source provides the status. Required.
	Source StatusSource

	// Backend returns the name of the active backend. Optional.
	Backend func() string
}

// Reporter publishes the debounced status periodically and on change.
type Reporter struct {
	cfg       ReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReporter creates a reporter. Call Start to begin publishing.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (r *Reporter) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

// Start begins periodic publishing.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop ends publishing and sends a final "stopping" status. Safe to call
// more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		r.publish(StateStopping, r.cfg.Source.Status())
	})
}

// PublishStarting publishes a "starting" status.
func (r *Reporter) PublishStarting() error {
	return r.publish(StateStarting, r.cfg.Source.Status())
}

// PublishNow publishes the current status immediately.
func (r *Reporter) PublishNow() error {
	st := r.cfg.Source.Status()
	return r.publish(stateFor(st), st)
}

// Changed is a ChangeFunc that publishes the new status.
func (r *Reporter) Changed(st Status) {
	if err := r.publish(stateFor(st), st); err != nil {
		r.logError("failed to publish status change", err)
	}
}

// LWTPayload returns the Last Will and Testament payload for StatusTopic.
func LWTPayload() ([]byte, error) {
	return json.Marshal(StatusMessage{Status: StateOffline, Availability: Unknown, Timestamp: time.Now().UTC()})
}

func stateFor(st Status) ServiceState {
	if st.Current == Available {
		return StateHealthy
	}
	return StateDegraded
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	if err := r.PublishNow(); err != nil {
		r.logError("failed to publish initial status", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.PublishNow(); err != nil {
				r.logError("failed to publish status", err)
			}
		}
	}
}

func (r *Reporter) publish(state ServiceState, st Status) error {
	if r.cfg.Publisher == nil || !r.cfg.Publisher.IsConnected() {
		return nil
	}

	msg := StatusMessage{
		Status:       state,
		Availability: st.Current,
		Displays:     st.Displays,
		Version:      r.cfg.Version,
		Reason:       st.Reason,
		UptimeSec:    int64(time.Since(r.startTime).Seconds()),
		Timestamp:    time.Now().UTC(),
	}
	if r.cfg.Backend != nil {
		msg.Backend = r.cfg.Backend()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.cfg.Publisher.Publish(StatusTopic, payload, 1, true)
}

func (r *Reporter) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
