package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAttribute    = "display_attribute"
	MeasurementSet          = "display_attribute_set"
	MeasurementAvailability = "display_availability"
)

// AttributeSample is one observed attribute value.
type AttributeSample struct {
	DisplayID string
	Display   string // connector name, e.g. "DP-0"
	Attribute string
	Value     int64
	Stale     bool
	Backend   string
	At        time.Time
}

// SetSample is one SetAttribute attempt.
type SetSample struct {
	DisplayID string
	Attribute string
	Value     int64
	Outcome   string
	Backend   string
	Latency   time.Duration
	At        time.Time
}

// WriteAttributeSample records an observed value. Non-blocking; points
// are batched and sent asynchronously.
func (c *Client) WriteAttributeSample(s AttributeSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(attributePoint(s))
}

// WriteSetSample records a set attempt with its latency.
func (c *Client) WriteSetSample(s SetSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(setPoint(s))
}

// WriteAvailability records the debounced device availability.
func (c *Client) WriteAvailability(available bool, displays int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(availabilityPoint(available, displays, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point at a given time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

func attributePoint(s AttributeSample) *write.Point {
	tags := map[string]string{
		"display_id": s.DisplayID,
		"attribute":  s.Attribute,
	}
	if s.Display != "" {
		tags["display"] = s.Display
	}
	if s.Backend != "" {
		tags["backend"] = s.Backend
	}
	return write.NewPoint(MeasurementAttribute, tags,
		map[string]any{"value": s.Value, "stale": s.Stale},
		timeOrNow(s.At))
}

func setPoint(s SetSample) *write.Point {
	tags := map[string]string{
		"display_id": s.DisplayID,
		"attribute":  s.Attribute,
		"outcome":    s.Outcome,
	}
	if s.Backend != "" {
		tags["backend"] = s.Backend
	}
	return write.NewPoint(MeasurementSet, tags,
		map[string]any{"value": s.Value, "latency_ms": float64(s.Latency.Microseconds()) / 1000}, //nolint:mnd // µs to ms
		timeOrNow(s.At))
}

func availabilityPoint(available bool, displays int, at time.Time) *write.Point {
	return write.NewPoint(MeasurementAvailability, nil,
		map[string]any{"available": available, "displays": int64(displays)},
		timeOrNow(at))
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
