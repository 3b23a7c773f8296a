package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/logging"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Service  *control.Service
	Audit    audit.Repository // optional: GET /audit answers 503 without it
	DB       *database.DB     // optional: pool stats in /metrics
	MQTT     *mqtt.Client     // optional: connection state in /metrics
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	service   *control.Service
	auditRepo audit.Repository
	db        *database.DB
	mqtt      *mqtt.Client
	version   string
	startTime time.Time

	server      *http.Server
	listener    net.Listener
	hub         *Hub
	cancel      context.CancelFunc // cancels background goroutines on Close()
	unsubscribe func()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Service == nil {
		return nil, errors.New("control service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		service:   deps.Service,
		auditRepo: deps.Audit,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, nil
}

// Start binds the listener, starts the WebSocket hub, relays service
// events to it and serves in a background goroutine. A port already in
// use is reported here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.unsubscribe = s.service.Subscribe(func(ev control.Event) {
		s.hub.Broadcast(ev.Type, ev.Data)
	})

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}

	return nil
}
