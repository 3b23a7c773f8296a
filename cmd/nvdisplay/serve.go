package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/nvdisplay-core/internal/api"
	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/backend"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/hotplug"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/mqtt"
)

// runServe is the daemon: device session, hotplug tracking, audit trail,
// optional InfluxDB telemetry and MQTT status/state/commands, and the HTTP
// API. It returns when ctx is cancelled.
func runServe(ctx context.Context, e *env, args []string) error { //nolint:gocognit,gocyclo // linear start-up sequence
	if len(args) != 0 {
		return usageErr("serve takes no arguments")
	}
	cfg, log := e.cfg, e.log
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	log.Info("starting nvdisplay",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", e.configPath,
	)

	// Audit trail
	db, rec, err := openAudit(ctx, cfg, log)
	if err != nil {
		return err
	}
	var auditRepo audit.Repository
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		auditRepo = audit.NewSQLiteRepository(db.DB)
		log.Info("audit trail enabled", "path", cfg.Database.Path)
	} else {
		log.Info("audit trail disabled")
	}

	// The service and the status reporter each hold a handle; the device
	// is released when the last one closes.
	shared := backend.NewShared(newBackend(cfg, log, rec))
	svcHandle, err := shared.Acquire()
	if err != nil {
		return fmt.Errorf("acquiring display backend: %w", err)
	}

	svcCfg := control.Config{
		Backend:      svcHandle,
		MaxAge:       cfg.Cache.MaxAge,
		PollInterval: cfg.Hotplug.PollInterval,
		Debounce:     cfg.Hotplug.Debounce,
		Audit:        rec,
		Logger:       log.Component("control"),
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		svcCfg.Telemetry = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Connect to MQTT (optional). The will marks the service offline when
	// the connection drops without a clean disconnect.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		will, err := hotplug.LWTPayload()
		if err != nil {
			return fmt.Errorf("building MQTT will: %w", err)
		}
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.WithWill(mqtt.Will{
			Topic:    mqtt.Topics{}.Status(),
			Payload:  will,
			QoS:      1,
			Retained: true,
		}))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT connected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		svcCfg.Publisher = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	svc, err := control.New(svcCfg)
	if err != nil {
		svcHandle.Close() //nolint:errcheck // Already failing
		return err
	}
	defer func() {
		log.Info("releasing display device")
		if closeErr := svc.Close(); closeErr != nil {
			log.Error("error closing display backend", "error", closeErr)
		}
	}()

	// The first listing resolves the backend; without a device the
	// daemon still serves and reports the outage.
	if displays, listErr := svc.ListDisplays(ctx); listErr != nil {
		log.Warn("no display path available yet",
			"error", listErr,
			"remediation", display.Remediation(listErr),
		)
	} else {
		log.Info("display backend ready", "backend", svc.Backend(), "displays", len(displays))
	}

	if mqttClient != nil {
		statusHandle, acqErr := shared.Acquire()
		if acqErr != nil {
			return fmt.Errorf("acquiring display backend: %w", acqErr)
		}
		defer statusHandle.Close() //nolint:errcheck // Only the last handle closes the device

		reporter := hotplug.NewReporter(hotplug.ReporterConfig{
			Version:   version,
			Interval:  cfg.MQTT.StatusInterval,
			Publisher: mqttClient,
			Source:    svc,
			Backend:   statusHandle.Active,
		})
		reporter.SetLogger(log.Component("status"))
		if pubErr := reporter.PublishStarting(); pubErr != nil {
			log.Warn("failed to publish starting status", "error", pubErr)
		}
		svc.Monitor().OnChange(reporter.Changed)
		reporter.Start(ctx)
		defer reporter.Stop()

		if subErr := mqttClient.Subscribe(mqtt.Topics{}.AllCommands(), byte(cfg.MQTT.QoS), svc.HandleCommand); subErr != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", subErr)
		}
	}

	svc.Start(ctx)

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log.Component("api"),
		Service:  svc,
		Audit:    auditRepo,
		DB:       db,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("initial health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "api", server.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// healthCheck verifies the optional infrastructure is reachable.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	var errs []error
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("influxdb: %w", err))
		}
	}
	return errors.Join(errs...)
}
