package mqtt

import (
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends payload and waits for the broker to acknowledge it.
// State topics are retained so a new subscriber sees the current value;
// commands never are.
//
//	topic := mqtt.Topics{}.AttributeState("0:1", "vibrance")
//	err := client.Publish(topic, []byte(`{"value":512}`), 1, true)
//
// Parameters:
//   - topic: full topic, no wildcards
//   - payload: at most 1MB
//   - qos: 0, 1 or 2
//   - retained: whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrPublishFailed wrapping the broker or timeout error
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %s: %d byte payload exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed, topic)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// PublishJSON encodes v and publishes it at the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: encoding payload: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}

// await waits for a paho token and wraps its failure in kind.
func await(tok pahomqtt.Token, kind error, topic string) error {
	if !tok.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: %w", kind, topic, ErrTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", kind, topic, err)
	}
	return nil
}
