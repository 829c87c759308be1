package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/xkazm04/personas-sub002/internal/config"
	"github.com/xkazm04/personas-sub002/internal/logger"
	"github.com/xkazm04/personas-sub002/internal/observability"
	"github.com/xkazm04/personas-sub002/internal/store"
	"github.com/xkazm04/personas-sub002/internal/tracing"
	"github.com/xkazm04/personas-sub002/pkg/engine/failover"
	"github.com/xkazm04/personas-sub002/pkg/engine/pipeline"
	"github.com/xkazm04/personas-sub002/pkg/engine/scheduler"
)

// Daemon wires the persona engine together: sqlite store, failover
// manager, execution pipeline, background scheduler and the HTTP surface.
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	store     *store.Store
	failover  *failover.Manager
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler

	// Services
	httpServer *Server

	// Internal
	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status reports the daemon's runtime state
type Status struct {
	Running   bool      `json:"running"`
	StartTime time.Time `json:"start_time,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()
	tracingEnabled := true
	if err := tracing.InitOpenTelemetry("personas-engine"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		tracingEnabled = false
	} else {
		log.Info().Msg("Tracing initialized successfully")
	}

	d := &Daemon{
		config:         cfg,
		logger:         log,
		tracingEnabled: tracingEnabled,
	}

	if err := d.initializeCoreModules(); err != nil {
		if d.tracingEnabled {
			_ = tracing.ShutdownOpenTelemetry(context.Background())
			d.tracingEnabled = false
		}
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	d.httpServer = NewServer(ServerConfig{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		Daemon: d,
		Logger: log.GetZerolog(),
	})
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes store, failover, pipeline and scheduler
func (d *Daemon) initializeCoreModules() error {
	// Audit logger
	auditPath := filepath.Join(d.config.DataDir, "audit.log")
	if err := observability.InitAuditLogger(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	st, err := store.New(store.Config{
		Path:   d.config.DatabasePath,
		Logger: d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	d.store = st
	d.logger.Info().Msg("Store initialized")

	d.failover = failover.NewManager(failover.Config{
		FailureThreshold: d.config.Failover.FailureThreshold,
		Cooldown:         d.config.FailoverCooldown(),
		Logger:           d.logger.GetZerolog(),
	})
	d.logger.Info().Msg("Failover manager initialized")

	p, err := pipeline.New(pipeline.Config{
		Repository:     d.store,
		Failover:       d.failover,
		ProviderOpts:   d.config.ProviderOptions(),
		Logger:         d.logger.GetZerolog(),
		DefaultTimeout: d.config.DefaultTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	d.pipeline = p
	d.logger.Info().Msg("Execution pipeline initialized")

	sched, err := scheduler.New(scheduler.Config{
		Source:           d.store,
		Runner:           d.pipeline,
		Logger:           d.logger.GetZerolog(),
		TriggerInterval:  time.Duration(d.config.Scheduler.TriggerIntervalSeconds) * time.Second,
		RotationInterval: time.Duration(d.config.Scheduler.RotationIntervalSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	d.scheduler = sched
	d.logger.Info().Msg("Scheduler initialized")

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting persona engine daemon")

	// Start lifecycle manager
	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// Start HTTP server
	if err := d.httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	logger.Info().Msg("HTTP server started")

	// Start scheduler loops
	d.scheduler.Start(context.Background())
	logger.Info().Msg("Scheduler started")

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping daemon")

	d.scheduler.Stop()
	d.logger.Info().Msg("Scheduler stopped")

	if err := d.httpServer.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop http server")
	}

	if err := d.store.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to shut down tracing")
		}
		d.tracingEnabled = false
	}

	if err := observability.GetAuditLogger().Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close audit logger")
	}

	d.logger.Info().Msg("Daemon stopped")
	return nil
}

// Status returns the daemon's runtime status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime).Round(time.Second).String()
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetStore returns the sqlite store
func (d *Daemon) GetStore() *store.Store {
	return d.store
}

// GetPipeline returns the execution pipeline
func (d *Daemon) GetPipeline() *pipeline.Pipeline {
	return d.pipeline
}

// GetScheduler returns the background scheduler
func (d *Daemon) GetScheduler() *scheduler.Scheduler {
	return d.scheduler
}

// GetFailover returns the failover manager
func (d *Daemon) GetFailover() *failover.Manager {
	return d.failover
}
