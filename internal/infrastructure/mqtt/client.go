package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
)

// Client is the broker connection used for the status, state and command
// topics. paho reconnects on its own; Client re-subscribes the command
// topics after every reconnect and counts them for /metrics.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected  atomic.Bool
	reconnects atomic.Uint64

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one received message. Returned errors are logged
// and do not affect acknowledgement. Handlers run on paho goroutines and
// should not block.
type MessageHandler func(topic string, payload []byte) error

// Connect connects to the broker named in cfg.
//
// It performs the following setup:
//  1. Builds paho options: broker URL, client ID, credentials, clean
//     session, auto-reconnect with backoff, keepalive and TLS
//  2. Registers the optional Last Will (the retained offline status)
//  3. Installs handlers that restore subscriptions and count reconnects
//  4. Connects and waits up to the connect timeout
//
// The OnConnect callback runs on every connect and reconnect, after the
// subscriptions have been restored.
//
// Parameters:
//   - cfg: mqtt section of config.yaml
//   - options: WithWill and friends
//
// Returns:
//   - *Client: connected client
//   - error: ErrConnectionFailed if the broker does not accept the connection
func Connect(cfg config.MQTTConfig, options ...Option) (*Client, error) {
	var co connectOptions
	for _, o := range options {
		o(&co)
	}

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureWill(opts, co.will)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.reconnects.Add(1)
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "broker", cfg.Broker.Host, "attempt", c.reconnects.Load())
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s:%d: no answer after %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// The OnConnect handler runs asynchronously and may not have fired yet.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// restoreSubscriptions re-subscribes every tracked topic. The broker
// drops them on reconnect because sessions are clean.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Close disconnects after letting pending publishes finish. A clean
// disconnect does not trigger the will, so the status reporter publishes
// its final state first.
//
// Returns:
//   - error: always nil; kept for the io.Closer shape
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports whether the broker connection is up.
//
// Parameters:
//   - ctx: checked for cancellation
//
// Returns:
//   - error: ErrNotConnected while the connection is down
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// Reconnects returns how many times paho has started reconnecting.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// SetOnConnect sets a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback for a lost connection.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets the logger for handler errors and panics. Without one
// they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.logger
}

// wrapHandler adapts h to paho, logging returned errors and recovering
// panics so one bad command cannot take down the paho router.
func (c *Client) wrapHandler(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := h(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT command rejected", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
