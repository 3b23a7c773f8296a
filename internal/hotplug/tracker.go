package hotplug

import (
	"sync"
	"time"
)

// DefaultDebounce is how long a changed probe must persist before the
// reported availability follows it.
const DefaultDebounce = 2 * time.Second

// Availability is the reported state of the display device.
type Availability string

// Availability values.
const (
	Unknown     Availability = "unknown"
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
)

func availabilityOf(available bool) Availability {
	if available {
		return Available
	}
	return Unavailable
}

// Phase is the tracker state machine phase.
type Phase string

// Tracker phases.
const (
	PhaseStable     Phase = "stable"
	PhaseDebouncing Phase = "debouncing"
)

// Status is the debounced availability. Callers act on Current; Candidate
// and Since describe a pending change while Phase is debouncing. Displays
// and Reason come from the last probe that agreed with Current, so a
// transient flip changes neither.
type Status struct {
	Current   Availability `json:"current"`
	Phase     Phase        `json:"phase"`
	Candidate Availability `json:"candidate,omitempty"`
	Since     time.Time    `json:"since,omitzero"`
	ChangedAt time.Time    `json:"changed_at,omitzero"`
	Displays  int          `json:"displays"`
	Reason    string       `json:"reason,omitempty"`
}

// Tracker debounces raw availability probes.
//
//	Stable(current) --probe != current--> Debouncing(candidate, since)
//	Debouncing --probe == current--> Stable(current)
//	Debouncing --now-since >= threshold--> Stable(candidate)
//
// The first observation seeds Current directly.
//
// Thread Safety: all methods are safe for concurrent use.
type Tracker struct {
	threshold time.Duration

	mu        sync.Mutex
	seeded    bool
	current   bool
	pending   bool
	candidate bool
	since     time.Time
	changedAt time.Time
	displays  int
	reason    string
}

// NewTracker creates a tracker. A non-positive threshold uses DefaultDebounce.
func NewTracker(threshold time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultDebounce
	}
	return &Tracker{threshold: threshold}
}

// Threshold returns the debounce threshold.
func (t *Tracker) Threshold() time.Duration {
	return t.threshold
}

// Probe is one raw observation of the device.
type Probe struct {
	Available bool
	Displays  int
	Reason    string
}

// Observe feeds one raw probe taken at now and reports whether Current
// changed. The display count and reason are left as they were.
func (t *Tracker) Observe(available bool, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.observeLocked(available, now)
}

// Record is Observe with the probe details. They are kept only when the
// probe agrees with Current after debouncing.
func (t *Tracker) Record(p Probe, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := t.observeLocked(p.Available, now)
	if p.Available == t.current {
		t.displays = p.Displays
		t.reason = p.Reason
	}
	return changed
}

func (t *Tracker) observeLocked(available bool, now time.Time) bool {
	if !t.seeded {
		t.seeded = true
		t.current = available
		t.changedAt = now
		return true
	}

	if available == t.current {
		t.pending = false
		return false
	}

	if !t.pending || t.candidate != available {
		t.pending = true
		t.candidate = available
		t.since = now
	}
	if now.Sub(t.since) < t.threshold {
		return false
	}

	t.current = t.candidate
	t.pending = false
	t.changedAt = now
	return true
}

// Current returns the debounced availability.
func (t *Tracker) Current() Availability {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeded {
		return Unknown
	}
	return availabilityOf(t.current)
}

// Status returns the full tracker state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{
		Current:   Unknown,
		Phase:     PhaseStable,
		ChangedAt: t.changedAt,
		Displays:  t.displays,
		Reason:    t.reason,
	}
	if t.seeded {
		st.Current = availabilityOf(t.current)
	}
	if t.pending {
		st.Phase = PhaseDebouncing
		st.Candidate = availabilityOf(t.candidate)
		st.Since = t.since
	}
	return st
}
