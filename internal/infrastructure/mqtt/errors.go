package mqtt

import "errors"

// Sentinel errors, checked with errors.Is.
var (
	// ErrConnectionFailed is returned when Connect cannot reach the broker.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the client is offline; status and
	// state publishes are skipped rather than queued.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps a broker-side publish failure.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a failure to subscribe to the command topics.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a failure to drop a subscription.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")

	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: timed out")
)
