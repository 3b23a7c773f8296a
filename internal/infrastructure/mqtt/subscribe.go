package mqtt

import (
	"fmt"
)

// Subscribe registers handler for topic, which may contain + and #
// wildcards. Subscriptions are tracked and restored after a reconnect.
//
//	err := client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        id, attr, _ := mqtt.Topics{}.ParseCommand(topic)
//	        return apply(id, attr, payload)
//	    })
//
// Parameters:
//   - topic: filter to subscribe to
//   - qos: maximum QoS for delivered messages
//   - handler: called on a paho goroutine; must not block
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or
//     ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	// Tracked first so a reconnect racing the SUBACK still restores it.
	c.track(subscription{topic: topic, qos: qos, handler: handler})

	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed, topic); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Unsubscribe removes a subscription. Messages already in flight may
// still arrive.
//
// Parameters:
//   - topic: the exact filter given to Subscribe
//
// Returns:
//   - error: ErrInvalidTopic, ErrNotConnected, or ErrUnsubscribeFailed
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget(topic)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed, topic)
}

func (c *Client) track(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether exactly this topic string is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
