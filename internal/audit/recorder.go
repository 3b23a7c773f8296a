package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// Sources of an action.
const (
	SourceCLI    = "cli"
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
	SourceSystem = "system"
)

// SetAttempt describes one SetAttribute call and its result.
type SetAttempt struct {
	Display  display.ID
	Kind     display.Kind
	Value    display.Value
	Previous *display.Value
	Backend  string
	Source   string
	Actor    string
	Err      error
}

// Recorder turns domain events into entries. A nil repository makes every
// method a no-op.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a Recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Enabled reports whether entries are persisted.
func (r *Recorder) Enabled() bool {
	return r != nil && r.repo != nil
}

// RecordSet writes one entry for a set attempt. Range rejections are
// recorded as rejected with the legal domain in the details.
func (r *Recorder) RecordSet(ctx context.Context, a SetAttempt) error {
	if !r.Enabled() {
		return nil
	}
	value := a.Value.Raw
	e := &Entry{
		Action:    ActionSet,
		DisplayID: a.Display.String(),
		Attribute: string(a.Kind),
		Value:     &value,
		Outcome:   outcomeOf(a.Err),
		Backend:   a.Backend,
		Source:    sourceOr(a.Source),
		Actor:     a.Actor,
	}
	if a.Previous != nil {
		prev := a.Previous.Raw
		e.Previous = &prev
	}
	if a.Err != nil {
		e.ErrorCode = display.ErrorCode(a.Err)
		e.Details = map[string]any{"error": a.Err.Error()}
		var invalid *display.InvalidValueError
		if errors.As(a.Err, &invalid) {
			e.Details["legal"] = invalid.Range.String()
		}
	}
	if err := r.repo.Create(ctx, e); err != nil {
		return fmt.Errorf("recording set of %s on %s: %w", a.Kind, a.Display, err)
	}
	return nil
}

// RecordFallback notes that the backend switched to the fallback path.
func (r *Recorder) RecordFallback(ctx context.Context, from, to string, cause error) error {
	if !r.Enabled() {
		return nil
	}
	e := &Entry{
		Action:  ActionFallback,
		Outcome: OutcomeOK,
		Backend: to,
		Source:  SourceSystem,
		Details: map[string]any{"from": from},
	}
	if cause != nil {
		e.ErrorCode = display.ErrorCode(cause)
		e.Details["cause"] = cause.Error()
	}
	if err := r.repo.Create(ctx, e); err != nil {
		return fmt.Errorf("recording fallback: %w", err)
	}
	return nil
}

// RecordHotplug notes a committed availability change.
func (r *Recorder) RecordHotplug(ctx context.Context, availability string, displays int, reason string) error {
	if !r.Enabled() {
		return nil
	}
	e := &Entry{
		Action:  ActionHotplug,
		Outcome: OutcomeOK,
		Source:  SourceSystem,
		Details: map[string]any{"availability": availability, "displays": displays},
	}
	if reason != "" {
		e.Details["reason"] = reason
	}
	if err := r.repo.Create(ctx, e); err != nil {
		return fmt.Errorf("recording hotplug change: %w", err)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, display.ErrInvalidAttributeValue):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func sourceOr(s string) string {
	if s == "" {
		return SourceSystem
	}
	return s
}
