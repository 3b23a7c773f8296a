package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Will is published by the broker if the daemon vanishes without a clean
// disconnect. The daemon registers a retained offline status.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Option customises Connect.
type Option func(*connectOptions)

type connectOptions struct {
	will *Will
}

// WithWill registers a Last Will and Testament.
func WithWill(w Will) Option {
	return func(o *connectOptions) { o.will = &w }
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps the mqtt config section onto paho. Sessions are
// clean, so subscriptions are restored by the client after a reconnect.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

func configureWill(opts *pahomqtt.ClientOptions, w *Will) {
	if w != nil && w.Topic != "" {
		opts.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retained)
	}
}
