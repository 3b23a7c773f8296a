package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/attribute"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/nvkms"
)

// SessionDriverName identifies the device path in logs and status.
const SessionDriverName = "nvkms"

// target addresses one connector inside the session.
type target struct {
	disp   uint32
	dpy    uint32
	static display.ConnectorStatic
}

// SessionDriver is the Driver backed by an nvkms.Session. The session is
// owned by a Worker; every session call runs on the worker goroutine.
type SessionDriver struct {
	session *nvkms.Session
	worker  *Worker
	logger  Logger

	mu      sync.RWMutex
	targets map[display.ID]target

	// statics is only touched on the worker goroutine.
	statics map[[2]uint32]target
}

// NewSessionDriver wraps session. The worker closes the session when the
// driver is closed. timeout bounds each operation.
func NewSessionDriver(session *nvkms.Session, timeout time.Duration, logger Logger) *SessionDriver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SessionDriver{
		session: session,
		worker:  NewWorker(SessionDriverName, session.Close, timeout, logger),
		logger:  logger,
		targets: make(map[display.ID]target),
		statics: make(map[[2]uint32]target),
	}
}

// Name implements Driver.
func (d *SessionDriver) Name() string { return SessionDriverName }

// Open opens the session and discovers connectors.
func (d *SessionDriver) Open(ctx context.Context) error {
	return d.worker.Do(ctx, func(ctx context.Context) error {
		if err := d.session.Open(ctx); err != nil {
			return err
		}
		_, err := d.discoverLocked(ctx)
		return err
	})
}

// Close stops the worker, which closes the session.
func (d *SessionDriver) Close() error {
	return d.worker.Close()
}

// Stats returns the session statistics.
func (d *SessionDriver) Stats() nvkms.Stats {
	return d.session.Stats()
}

// ListDisplays queries every connector, refreshing dynamic data.
func (d *SessionDriver) ListDisplays(ctx context.Context) ([]display.Display, error) {
	var out []display.Display
	err := d.worker.Do(ctx, func(ctx context.Context) error {
		if err := d.ensureOpen(ctx); err != nil {
			return err
		}
		var err error
		out, err = d.discoverLocked(ctx)
		return err
	})
	return out, err
}

// GetAttribute implements Driver.
func (d *SessionDriver) GetAttribute(ctx context.Context, id display.ID, kind display.Kind) (display.Value, error) {
	m, err := nvkms.AttributeFor(kind)
	if err != nil {
		return display.Value{}, err
	}

	var raw int64
	err = d.withTarget(ctx, id, func(ctx context.Context, t target) error {
		var err error
		raw, err = d.session.GetAttribute(ctx, t.disp, t.dpy, m.Get)
		return err
	})
	if err != nil {
		return display.Value{}, err
	}
	return nvkms.DecodeValue(kind, raw)
}

// SetAttribute implements Driver.
func (d *SessionDriver) SetAttribute(ctx context.Context, id display.ID, kind display.Kind, value display.Value) error {
	m, err := nvkms.AttributeFor(kind)
	if err != nil {
		return err
	}
	return d.withTarget(ctx, id, func(ctx context.Context, t target) error {
		return d.session.SetAttribute(ctx, t.disp, t.dpy, m.Set, nvkms.EncodeValue(value))
	})
}

// ValidValues implements Driver. Sharpening is checked for availability
// first and takes its default from the driver.
func (d *SessionDriver) ValidValues(ctx context.Context, id display.ID, kind display.Kind) (display.ValueRange, error) {
	m, err := nvkms.AttributeFor(kind)
	if err != nil {
		return display.ValueRange{}, err
	}
	desc, _ := attribute.Describe(kind)

	var rng display.ValueRange
	err = d.withTarget(ctx, id, func(ctx context.Context, t target) error {
		def := desc.Default
		if kind == display.KindSharpening {
			available, err := d.session.GetAttribute(ctx, t.disp, t.dpy, nvkms.AttrImageSharpeningAvailable)
			if err != nil {
				return err
			}
			if available == 0 {
				return fmt.Errorf("%w: %s on %s", display.ErrUnsupported, kind, id)
			}
			if def, err = d.session.GetAttribute(ctx, t.disp, t.dpy, nvkms.AttrImageSharpeningDefault); err != nil {
				return err
			}
		}

		reply, err := d.session.ValidValues(ctx, t.disp, t.dpy, m.Valid)
		if err != nil {
			return err
		}
		if rng, err = reply.Domain(kind); err != nil {
			return err
		}
		rng.Default = def
		if !rng.Contains(def) && len(rng.Legal) > 0 {
			rng.Default = rng.Legal[0]
		}
		return nil
	})
	return rng, err
}

// withTarget resolves id and runs fn on the worker.
func (d *SessionDriver) withTarget(ctx context.Context, id display.ID, fn func(context.Context, target) error) error {
	return d.worker.Do(ctx, func(ctx context.Context) error {
		if err := d.ensureOpen(ctx); err != nil {
			return err
		}

		d.mu.RLock()
		t, ok := d.targets[id]
		empty := len(d.targets) == 0
		d.mu.RUnlock()

		if !ok && empty {
			if _, err := d.discoverLocked(ctx); err != nil {
				return err
			}
			d.mu.RLock()
			t, ok = d.targets[id]
			d.mu.RUnlock()
		}
		if !ok {
			return fmt.Errorf("%w: %s", display.ErrDisplayNotFound, id)
		}
		return fn(ctx, t)
	})
}

// ensureOpen reopens a Failed session once. Runs on the worker.
func (d *SessionDriver) ensureOpen(ctx context.Context) error {
	if d.session.State() != nvkms.StateFailed {
		return nil
	}
	d.logger.Warn("reopening failed nvkms session")

	d.mu.Lock()
	clear(d.targets)
	d.mu.Unlock()
	clear(d.statics)

	return d.session.Open(ctx)
}

// discoverLocked walks disps and connectors. Static data is fetched once
// per session and connector. Runs on the worker.
func (d *SessionDriver) discoverLocked(ctx context.Context) ([]display.Display, error) {
	var (
		displays []display.Display
		targets  = make(map[display.ID]target)
		index    uint32
	)
	for _, disp := range d.session.DispHandles() {
		q, err := d.session.QueryDisp(ctx, disp)
		if err != nil {
			return nil, fmt.Errorf("querying disp %d: %w", disp, err)
		}

		for _, conn := range q.ConnectorHandles {
			id := display.ID{Device: d.session.DeviceID(), Connector: index}
			index++

			t, err := d.staticFor(ctx, disp, conn)
			if err != nil {
				return nil, err
			}
			targets[id] = t

			dyn, err := d.session.DpyDynamic(ctx, disp, t.dpy)
			if err != nil {
				return nil, fmt.Errorf("querying %s: %w", t.static.Name(), err)
			}

			displays = append(displays, display.Display{
				ID:      id,
				Name:    t.static.Name(),
				Static:  t.static,
				Dynamic: dynamicFrom(dyn),
			})
		}
	}

	d.mu.Lock()
	d.targets = targets
	d.mu.Unlock()
	return displays, nil
}

// staticFor returns the static data of a connector, querying the session
// only the first time. Runs on the worker.
func (d *SessionDriver) staticFor(ctx context.Context, disp, conn uint32) (target, error) {
	key := [2]uint32{disp, conn}
	if t, ok := d.statics[key]; ok {
		return t, nil
	}

	st, err := d.session.ConnectorStatic(ctx, disp, conn)
	if err != nil {
		return target{}, fmt.Errorf("querying connector %d: %w", conn, err)
	}
	t := target{disp: disp, dpy: st.DpyID, static: staticFrom(st)}
	d.statics[key] = t
	return t, nil
}

func staticFrom(st nvkms.ConnectorStaticReply) display.ConnectorStatic {
	return display.ConnectorStatic{
		Type:          connectorType(st.Type),
		TypeIndex:     st.TypeIndex,
		PhysicalIndex: st.PhysicalIndex,
		SignalFormat:  st.SignalFormat.String(),
		IsDP:          st.IsDP,
	}
}

func dynamicFrom(dyn nvkms.DpyDynamicReply) display.ConnectorDynamic {
	out := display.ConnectorDynamic{Connected: dyn.Connected, Monitor: dyn.MonitorName}
	if dyn.ModeValid {
		out.ActiveMode = &display.Mode{
			Width:          uint32(dyn.Width),
			Height:         uint32(dyn.Height),
			RefreshMilliHz: dyn.RefreshMilliHz,
		}
	}
	return out
}

func connectorType(t nvkms.ConnectorType) display.ConnectorType {
	switch t {
	case nvkms.ConnectorTypeDP, nvkms.ConnectorTypeDPSerializer:
		return display.ConnectorDP
	case nvkms.ConnectorTypeVGA:
		return display.ConnectorVGA
	case nvkms.ConnectorTypeDVII:
		return display.ConnectorDVII
	case nvkms.ConnectorTypeDVID:
		return display.ConnectorDVID
	case nvkms.ConnectorTypeLVDS:
		return display.ConnectorLVDS
	case nvkms.ConnectorTypeHDMI:
		return display.ConnectorHDMI
	case nvkms.ConnectorTypeUSBC:
		return display.ConnectorUSBC
	case nvkms.ConnectorTypeDSI:
		return display.ConnectorDSI
	}
	return display.ConnectorUnknown
}
