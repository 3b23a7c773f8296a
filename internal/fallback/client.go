package fallback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/nerrad567/nvdisplay-core/internal/attribute"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/process"
)

// DriverName identifies this driver in logs and status.
const DriverName = "nvidia-settings"

// Executor runs the tool with arguments. *process.Runner implements it.
type Executor interface {
	Run(ctx context.Context, args ...string) (process.Result, error)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds fallback configuration.
type Config struct {
	// CtrlDisplay is the X display nvidia-settings controls (e.g., ":0").
	// Empty lets the tool use $DISPLAY.
	CtrlDisplay string

	// Device is the device index reported in display IDs.
	Device uint32
}

// Client implements the attribute driver contract with nvidia-settings.
//
// Thread Safety: all methods are safe for concurrent use; each call is an
// independent subprocess.
type Client struct {
	exec   Executor
	cfg    Config
	logger Logger

	mu    sync.RWMutex
	names map[display.ID]string
}

// New creates a client that runs the tool through exec.
func New(exec Executor, cfg Config) *Client {
	return &Client{
		exec:   exec,
		cfg:    cfg,
		logger: noopLogger{},
		names:  make(map[display.ID]string),
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Name returns the driver name.
func (c *Client) Name() string { return DriverName }

// Open checks that the tool runs and can see at least the display list.
func (c *Client) Open(ctx context.Context) error {
	displays, err := c.ListDisplays(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("nvidia-settings fallback ready", "displays", len(displays))
	return nil
}

// Close implements the driver contract. The client holds no resources.
func (c *Client) Close() error { return nil }

// ListDisplays enumerates display devices known to the tool.
func (c *Client) ListDisplays(ctx context.Context) ([]display.Display, error) {
	out, err := c.run(ctx, "list", "dpys", "-q", "dpys")
	if err != nil {
		return nil, err
	}

	dpys, err := parseDpys(out)
	if err != nil {
		return nil, toolError("list", "dpys", err, out)
	}

	displays := make([]display.Display, 0, len(dpys))
	names := make(map[display.ID]string, len(dpys))
	for _, d := range dpys {
		id := display.ID{Device: c.cfg.Device, Connector: d.Index}
		names[id] = d.Name
		displays = append(displays, display.Display{
			ID:      id,
			Name:    d.Name,
			Static:  connectorFromName(d.Name),
			Dynamic: display.ConnectorDynamic{Connected: d.Connected},
		})
	}

	c.mu.Lock()
	c.names = names
	c.mu.Unlock()
	return displays, nil
}

// GetAttribute reads kind on id.
func (c *Client) GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	desc, target, err := c.target(ctx, id, kind, true)
	if err != nil {
		return display.Value{}, err
	}

	out, err := c.run(ctx, "query", target, "-q", target, "-t")
	if err != nil {
		return display.Value{}, err
	}
	raw, err := parseValue(out)
	if err != nil {
		return display.Value{}, toolError("query", target, err, out)
	}
	if desc.Shape == display.ShapeBool && raw != 0 && raw != 1 {
		return display.Value{}, toolError("query", target, fmt.Errorf("%d is not boolean", raw), out)
	}
	return display.IntValue(kind, raw), nil
}

// SetAttribute writes kind on id. The value is not validated here.
func (c *Client) SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	desc, target, err := c.target(ctx, id, kind, false)
	if err != nil {
		return err
	}

	raw := value.Raw
	if desc.Shape == display.ShapeBool {
		// Dithering: 1 = enabled, 2 = disabled (0 would mean auto).
		raw = 2
		if value.Bool() {
			raw = 1
		}
	}

	assign := target + "=" + strconv.FormatInt(raw, 10)
	_, err = c.run(ctx, "assign", assign, "-a", assign)
	return err
}

// ValidValues reads the domain of kind on id. When the tool output carries
// no domain, the kind's documented domain is assumed.
func (c *Client) ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	desc, target, err := c.target(ctx, id, kind, true)
	if err != nil {
		return display.ValueRange{}, err
	}

	out, err := c.run(ctx, "describe", target, "-q", target)
	if err != nil {
		return display.ValueRange{}, err
	}

	rng, ok, err := parseDomain(kind, out)
	if err != nil {
		return display.ValueRange{}, toolError("describe", target, err, out)
	}
	if !ok {
		c.logger.Debug("no valid values in tool output, assuming documented domain",
			"target", target,
			"range", desc.Fallback.String(),
		)
		return desc.Fallback, nil
	}
	rng.Default = desc.Default
	if !rng.Contains(rng.Default) && len(rng.Legal) > 0 {
		rng.Default = rng.Legal[0]
	}
	return rng, nil
}

// target builds "[DPY:<name>]/<Attribute>" for kind on id.
func (c *Client) target(ctx context.Context, id display.ID, kind display.Kind, read bool) (attribute.Descriptor, string, error) {
	desc, ok := attribute.Describe(kind)
	if !ok {
		return attribute.Descriptor{}, "", fmt.Errorf("%w: %q", display.ErrInvalidKind, kind)
	}

	name, err := c.dpyName(ctx, id)
	if err != nil {
		return attribute.Descriptor{}, "", err
	}

	attr := desc.SettingsName
	if read {
		attr = desc.ReadName()
	}
	return desc, fmt.Sprintf("[DPY:%s]/%s", name, attr), nil
}

// dpyName resolves an ID to the tool's display name, listing displays on
// first use.
func (c *Client) dpyName(ctx context.Context, id display.ID) (string, error) {
	c.mu.RLock()
	name, ok := c.names[id]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	if _, err := c.ListDisplays(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	name, ok = c.names[id]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", display.ErrDisplayNotFound, id)
	}
	return name, nil
}

// run executes the tool and maps failures onto the taxonomy.
func (c *Client) run(ctx context.Context, op, target string, args ...string) (string, error) {
	if c.cfg.CtrlDisplay != "" {
		args = append([]string{"--ctrl-display", c.cfg.CtrlDisplay}, args...)
	}

	res, err := c.exec.Run(ctx, args...)
	out := string(res.Stdout)
	if err != nil {
		var exitErr *process.ExitError
		if errors.As(err, &exitErr) && (isUnavailable(exitErr.Stderr) || isUnavailable(out)) {
			return "", fmt.Errorf("%w: %s", display.ErrUnsupported, target)
		}
		return "", toolError(op, target, err, out)
	}

	if hasError(out) || hasError(string(res.Stderr)) {
		if isUnavailable(out) || isUnavailable(string(res.Stderr)) {
			return "", fmt.Errorf("%w: %s", display.ErrUnsupported, target)
		}
		return "", toolError(op, target, errors.New("tool reported an error"), out+string(res.Stderr))
	}
	return out, nil
}
