package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled")

	// ErrConnectionFailed is returned when the server does not answer the
	// initial ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps asynchronous batch failures passed to SetOnError.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
