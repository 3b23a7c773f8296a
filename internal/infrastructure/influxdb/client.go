package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client sends display telemetry to one InfluxDB bucket.
//
// Writes never block the caller: points are batched by the library and
// flushed every flush_interval or batch_size points.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	open atomic.Bool

	errMu   sync.RWMutex
	onError func(err error)
}

// Connect opens the telemetry connection to InfluxDB.
//
// It performs the following setup:
//  1. Returns ErrDisabled when the section is switched off
//  2. Creates the client with token authentication and batching
//  3. Verifies the server with a ping
//  4. Prepares the non-blocking write API and forwards its async errors
//     to the SetOnError callback
//
// Parameters:
//   - cfg: influxdb section of config.yaml
//
// Returns:
//   - *Client: ready for the Write* methods
//   - error: ErrDisabled, or ErrConnectionFailed if the ping fails
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}

	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// forwardErrors hands asynchronous write failures to the OnError callback
// until the write API is closed.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		fn := c.onError
		c.errMu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// HealthCheck pings the server.
//
// Parameters:
//   - ctx: bounds the ping
//
// Returns:
//   - error: ErrNotConnected after Close, otherwise the ping error
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are sent. No-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}

// Close flushes buffered points and releases the client. Writes after
// Close, and later calls to Close, are no-ops.
//
// Returns:
//   - error: always nil; kept for the io.Closer shape
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
