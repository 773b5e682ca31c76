// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/internal/api"
	"github.com/noma-protocol/pricefeed/internal/cache"
	"github.com/noma-protocol/pricefeed/internal/chain"
	"github.com/noma-protocol/pricefeed/internal/database"
	"github.com/noma-protocol/pricefeed/internal/messaging"
	"github.com/noma-protocol/pricefeed/internal/registry"
	"github.com/noma-protocol/pricefeed/internal/storage"
	"github.com/noma-protocol/pricefeed/internal/tracker"
	"github.com/noma-protocol/pricefeed/internal/websocket"
	"github.com/noma-protocol/pricefeed/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	registry  *registry.Registry
	chainClnt *chain.Client
	trk       *tracker.Tracker
	hub       *websocket.Hub
	apiServer *api.Server

	// optional infrastructure
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	influxDB   *database.InfluxClient
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (a *App) Initialize() error {
	if err := a.initializeInfrastructure(); err != nil {
		return err
	}

	a.registry = registry.New()
	a.chainClnt = chain.NewClient(&a.cfg.Chain, a.logger)
	a.hub = websocket.NewHub(a.logger)

	snapshots := storage.NewSnapshotStore(a.cfg.Tracker.SnapshotPath, a.logger)
	a.trk = tracker.New(
		&a.cfg.Tracker,
		a.registry,
		a.chainClnt,
		a.chainClnt,
		snapshots,
		a.natsClient,
		a.influxDB,
		a.redisCache,
		a.logger,
	)
	a.trk.OnPriceUpdate(a.hub.BroadcastPrice)

	a.apiServer = api.NewServer(a.cfg, a.logger, a.trk, a.hub, a.redisCache)
	return nil
}

// initializeInfrastructure connects the optional sinks. Each is skipped when
// disabled; a connection failure on an enabled sink aborts startup so a
// misconfigured deployment fails loudly.
func (a *App) initializeInfrastructure() error {
	if a.cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.redisCache = redisClient
	}

	if a.cfg.NATS.Enabled {
		natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsClient = natsClient
	}

	if a.cfg.InfluxDB.Enabled {
		a.influxDB = database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)
		if err := a.influxDB.Health(a.ctx); err != nil {
			return fmt.Errorf("failed to connect to InfluxDB: %w", err)
		}
	}

	return nil
}

// Start starts the application
func (a *App) Start() error {
	if err := a.trk.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}

	for _, pool := range a.cfg.Chain.Pools {
		a.trk.Track(pool)
	}
	if len(a.cfg.Chain.Pools) == 0 {
		a.logger.Warn("No pools configured, ingestion is idle")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.hub.Run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the application
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")
	a.cancel()

	// tracker stop flushes the final snapshot
	if err := a.trk.Stop(); err != nil {
		a.logger.WithError(err).Error("Error stopping tracker")
	}

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	a.closeConnections()
	a.logger.Info("Application stopped")
	return nil
}

func (a *App) closeConnections() {
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close Redis")
		}
	}
	if a.natsClient != nil {
		a.natsClient.Close()
	}
	if a.influxDB != nil {
		a.influxDB.Close()
	}
}
