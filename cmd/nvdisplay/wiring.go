package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/backend"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/fallback"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/logging"
	"github.com/nerrad567/nvdisplay-core/internal/nvkms"
	"github.com/nerrad567/nvdisplay-core/internal/process"
	"github.com/nerrad567/nvdisplay-core/migrations"
)

// emulatedVersion is the driver version the emulator accepts when none
// is configured.
const emulatedVersion = "emulated"

// driverVersion returns the configured version, or the one the loaded
// kernel module reports.
func driverVersion(cfg config.DeviceConfig, log *logging.Logger) string {
	if cfg.DriverVersion != "" {
		return cfg.DriverVersion
	}
	if cfg.Emulate {
		return emulatedVersion
	}
	info, err := backend.ReadDriverInfo(cfg.DriverInfoPath)
	if err != nil {
		// Open will then fail as a protocol or absent-device error and
		// the fallback takes over.
		log.Debug("driver version unknown", "path", cfg.DriverInfoPath, "error", err)
		return ""
	}
	return info.Version
}

// newBackend builds the device path with an optional nvidia-settings
// fallback. rec audits the switch to the fallback; it may be nil.
func newBackend(cfg *config.Config, log *logging.Logger, rec *audit.Recorder) *backend.Real {
	ver := driverVersion(cfg.Device, log)

	sessionCfg := nvkms.Config{
		Path:         cfg.Device.Path,
		Version:      ver,
		DeviceID:     cfg.Device.DeviceID,
		RetryBackoff: cfg.Device.RetryBackoff,
		Logger:       log.Component("nvkms"),
	}
	if cfg.Device.Emulate {
		sessionCfg.Open = nvkms.NewEmulator(ver).Open
		log.Info("using device emulator", "version", ver)
	}
	primary := backend.NewSessionDriver(nvkms.NewSession(sessionCfg), cfg.Device.OpTimeout, log.Component("worker"))

	var fb backend.Driver
	if cfg.Fallback.Enabled && !cfg.Device.Emulate {
		runner := process.NewRunner(process.Config{
			Name:    "nvidia-settings",
			Binary:  cfg.Fallback.Binary,
			Timeout: cfg.Fallback.Timeout,
		})
		runner.SetLogger(log.Component("process"))
		client := fallback.New(runner, fallback.Config{
			CtrlDisplay: cfg.Fallback.CtrlDisplay,
			Device:      cfg.Device.DeviceID,
		})
		client.SetLogger(log.Component("fallback"))
		fb = client
	}

	opts := []backend.Option{backend.WithLogger(log.Component("backend"))}
	if rec.Enabled() {
		opts = append(opts, backend.WithSwitchHook(control.SwitchHook(rec, log.Component("audit"))))
	}
	return backend.NewReal(primary, fb, opts...)
}

// openAudit opens and migrates the audit database when it is enabled.
// It returns a nil DB and a no-op recorder otherwise.
func openAudit(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *audit.Recorder, error) {
	if !cfg.Database.Enabled {
		return nil, audit.NewRecorder(nil), nil
	}
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("audit database ready", "path", cfg.Database.Path)
	return db, audit.NewRecorder(audit.NewSQLiteRepository(db.DB)), nil
}

// oneShot is the service used by list/get/set/status. Close releases the
// device and the audit database.
type oneShot struct {
	svc *control.Service
	db  *database.DB
}

func (o *oneShot) Close() error {
	err := o.svc.Close()
	if o.db != nil {
		if cerr := o.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func newOneShot(ctx context.Context, e *env) (*oneShot, error) {
	db, rec, err := openAudit(ctx, e.cfg, e.log)
	if err != nil {
		return nil, err
	}
	svc, err := control.New(control.Config{
		Backend: newBackend(e.cfg, e.log, rec),
		MaxAge:  e.cfg.Cache.MaxAge,
		Audit:   rec,
		Logger:  e.log.Component("control"),
	})
	if err != nil {
		if db != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
		}
		return nil, err
	}
	return &oneShot{svc: svc, db: db}, nil
}
