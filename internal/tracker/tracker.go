// Package tracker drives ingestion: one price poller and one volume poller
// per tracked pool, a periodic snapshot saver, and the query surface over
// the aggregated state. All candle state transitions run under the pool's
// entry lock; side effects (NATS, Influx, Redis) happen after the lock is
// released and never block ingestion.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/internal/cache"
	"github.com/noma-protocol/pricefeed/internal/database"
	"github.com/noma-protocol/pricefeed/internal/messaging"
	"github.com/noma-protocol/pricefeed/internal/metrics"
	"github.com/noma-protocol/pricefeed/internal/registry"
	"github.com/noma-protocol/pricefeed/internal/series"
	"github.com/noma-protocol/pricefeed/internal/storage"
	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// PriceSource supplies spot price samples for a pool.
type PriceSource interface {
	FetchPrice(ctx context.Context, pool string) (price float64, ts int64, err error)
}

// VolumeSource supplies swap volume events for a pool since the last fetch.
type VolumeSource interface {
	FetchVolume(ctx context.Context, pool string) ([]models.VolumeSample, error)
}

// Tracker owns the registry and all per-pool schedulers.
type Tracker struct {
	cfg       *config.TrackerConfig
	registry  *registry.Registry
	engine    *series.Engine
	prices    PriceSource
	volumes   VolumeSource
	snapshots *storage.SnapshotStore
	logger    *logrus.Entry

	// optional sinks, nil when disabled
	nats   *messaging.NATSClient
	influx *database.InfluxClient
	redis  *cache.RedisClient

	// onPrice, when set, receives every applied sample (used by the
	// websocket hub); it must not block
	onPrice func(pool string, price float64, ts int64)

	now func() int64

	mu      sync.Mutex
	tracked map[string]bool
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a tracker. The NATS, Influx and Redis sinks may be nil.
func New(
	cfg *config.TrackerConfig,
	reg *registry.Registry,
	prices PriceSource,
	volumes VolumeSource,
	snapshots *storage.SnapshotStore,
	natsClient *messaging.NATSClient,
	influxClient *database.InfluxClient,
	redisClient *cache.RedisClient,
	logger *logrus.Logger,
) *Tracker {
	return &Tracker{
		cfg:       cfg,
		registry:  reg,
		engine:    series.NewEngine(cfg.DatapointCap),
		prices:    prices,
		volumes:   volumes,
		snapshots: snapshots,
		nats:      natsClient,
		influx:    influxClient,
		redis:     redisClient,
		logger:    logger.WithField("component", "tracker"),
		now:       func() int64 { return time.Now().UnixMilli() },
		tracked:   make(map[string]bool),
	}
}

// OnPriceUpdate installs a non-blocking callback fired for every applied
// sample. Must be set before Start.
func (t *Tracker) OnPriceUpdate(fn func(pool string, price float64, ts int64)) {
	t.onPrice = fn
}

// Start restores persisted state and begins the periodic snapshot loop.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tracker already running")
	}
	t.running = true
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	t.restoreSnapshot()

	if t.snapshots != nil && t.cfg.SnapshotInterval > 0 {
		t.wg.Add(1)
		go t.snapshotLoop()
	}
	return nil
}

// Stop cancels all pollers, waits for in-flight ticks and writes one final
// best-effort snapshot.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()

	if t.snapshots != nil {
		if err := t.SaveSnapshot(); err != nil {
			t.logger.WithError(err).Warn("Final snapshot save failed")
		}
	}
	return nil
}

// Track registers a pool and starts its pollers. Idempotent per pool.
func (t *Tracker) Track(pool string) {
	key := registry.Normalize(pool)

	t.mu.Lock()
	if !t.running || t.tracked[key] {
		t.mu.Unlock()
		return
	}
	t.tracked[key] = true
	ctx := t.ctx
	t.mu.Unlock()

	t.registry.GetOrCreate(pool)
	t.logger.WithField("pool", pool).Info("Tracking pool")

	if t.prices != nil {
		t.wg.Add(1)
		go t.pricePoller(ctx, pool)
	}
	if t.volumes != nil {
		t.wg.Add(1)
		go t.volumePoller(ctx, pool)
	}
}

func (t *Tracker) pricePoller(ctx context.Context, pool string) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.PricePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, ts, err := t.prices.FetchPrice(ctx, pool)
			if err != nil {
				// upstream failure skips this tick only
				metrics.UpstreamErrors.WithLabelValues(pool).Inc()
				t.logger.WithError(err).WithField("pool", pool).Warn("Price fetch failed")
				continue
			}
			if err := t.IngestPrice(pool, price, ts); err != nil {
				t.logger.WithError(err).WithField("pool", pool).Debug("Sample not applied")
			}
		}
	}
}

func (t *Tracker) volumePoller(ctx context.Context, pool string) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.VolumePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples, err := t.volumes.FetchVolume(ctx, pool)
			if err != nil {
				metrics.UpstreamErrors.WithLabelValues(pool).Inc()
				t.logger.WithError(err).WithField("pool", pool).Warn("Volume fetch failed")
				continue
			}
			t.IngestVolume(pool, samples)
		}
	}
}

// IngestPrice folds one price sample into the pool's series and fires the
// downstream effects for any candles the sample closed.
func (t *Tracker) IngestPrice(pool string, price float64, ts int64) error {
	entry := t.registry.GetOrCreate(pool)
	now := t.now()

	var closed []messaging.CandleClosed
	var applyErr error
	entry.Update(func(s *models.PriceSeries) {
		before := lastBuckets(s)
		if applyErr = t.engine.Apply(s, price, ts); applyErr != nil {
			return
		}
		t.engine.Prune(s, now)
		closed = collectClosed(s, before, entry.DisplayID)
	})

	if applyErr != nil {
		if errors.Is(applyErr, series.ErrStaleSample) {
			metrics.StaleSamplesRejected.WithLabelValues(pool).Inc()
		}
		return applyErr
	}
	metrics.SamplesIngested.WithLabelValues(pool).Inc()

	go t.publishPrice(entry.DisplayID, price, ts, closed)
	return nil
}

// IngestVolume records swap volume events and recomputes the rolling sums.
func (t *Tracker) IngestVolume(pool string, samples []models.VolumeSample) {
	if len(samples) == 0 {
		return
	}
	entry := t.registry.GetOrCreate(pool)
	now := t.now()

	entry.Update(func(s *models.PriceSeries) {
		for _, v := range samples {
			series.RecordVolume(s, v.AmountUSD, v.Timestamp, now)
		}
	})
	metrics.VolumeEvents.WithLabelValues(pool).Add(float64(len(samples)))
}

// lastBuckets records each interval's newest bucket so candle closes can be
// detected after the sample is applied.
func lastBuckets(s *models.PriceSeries) map[string]int64 {
	out := make(map[string]int64, len(models.Intervals))
	for _, iv := range models.Intervals {
		if c := s.LatestCandle(iv.Name); c != nil {
			out[iv.Name] = c.Timestamp
		} else {
			out[iv.Name] = -1
		}
	}
	return out
}

// collectClosed returns the candles that stopped being the open bucket.
func collectClosed(s *models.PriceSeries, before map[string]int64, pool string) []messaging.CandleClosed {
	var closed []messaging.CandleClosed
	for _, iv := range models.Intervals {
		prev := before[iv.Name]
		candles := s.Candles[iv.Name]
		n := len(candles)
		if prev < 0 || n < 2 || candles[n-1].Timestamp == prev {
			continue
		}
		// the bucket that was open before this sample is now final
		for i := n - 2; i >= 0; i-- {
			if candles[i].Timestamp == prev {
				closed = append(closed, messaging.CandleClosed{
					Pool:     pool,
					Interval: iv.Name,
					Candle:   candles[i],
				})
				break
			}
		}
	}
	return closed
}

// publishPrice fans the sample and any closed candles out to the optional
// sinks. Failures are logged and never reach the ingestion path.
func (t *Tracker) publishPrice(pool string, price float64, ts int64, closed []messaging.CandleClosed) {
	if t.onPrice != nil {
		t.onPrice(pool, price, ts)
	}

	if t.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		latest := &models.Latest{Price: price, LastUpdated: ts}
		if err := t.redis.SetLatest(ctx, registry.Normalize(pool), latest); err != nil {
			t.logger.WithError(err).WithField("pool", pool).Debug("Latest price cache write failed")
		}
		cancel()
	}

	if t.nats != nil {
		update := &messaging.PriceUpdate{Pool: pool, Price: price, Timestamp: ts}
		if err := t.nats.PublishPrice(update); err != nil {
			t.logger.WithError(err).WithField("pool", pool).Debug("Price publish failed")
		}
		for i := range closed {
			if err := t.nats.PublishCandle(&closed[i]); err != nil {
				t.logger.WithError(err).WithField("pool", pool).Debug("Candle publish failed")
			}
		}
	}

	if t.influx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, c := range closed {
			if err := t.influx.WriteCandle(ctx, c.Pool, c.Interval, c.Candle); err != nil {
				t.logger.WithError(err).WithFields(logrus.Fields{
					"pool":     c.Pool,
					"interval": c.Interval,
				}).Warn("Candle archive write failed")
			}
		}
	}
}

func (t *Tracker) snapshotLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.SaveSnapshot(); err != nil {
				metrics.SnapshotFailures.Inc()
				t.logger.WithError(err).Warn("Snapshot save failed, will retry")
			}
		}
	}
}

// SaveSnapshot runs the defensive repair and derivation pass over every pool
// and persists the document.
func (t *Tracker) SaveSnapshot() error {
	repairs := 0
	pools := make(map[string]*models.PriceSeries, t.registry.Len())
	t.registry.Each(func(key string, entry *registry.Entry) {
		entry.Update(func(s *models.PriceSeries) {
			t.engine.DeriveCoarse(s)
			repairs += series.ValidateAndRepair(s)
		})
		pools[key] = entry.Snapshot()
	})

	if repairs > 0 {
		metrics.ContinuityRepairs.Add(float64(repairs))
		t.logger.WithField("repairs", repairs).Warn("Continuity violations repaired before save")
	}

	return t.snapshots.Save(&models.Snapshot{
		LastSaved: t.now(),
		Pools:     pools,
	})
}

// restoreSnapshot loads persisted state, repairs continuity, backfills thin
// intervals from raw history and rebuilds the rolling volume sums. A load
// failure boots empty rather than aborting startup.
func (t *Tracker) restoreSnapshot() {
	if t.snapshots == nil {
		return
	}
	snap, err := t.snapshots.Load()
	if err != nil {
		t.logger.WithError(err).Warn("Snapshot load failed, starting empty")
		return
	}

	now := t.now()
	repairs := 0
	for id, s := range snap.Pools {
		if s == nil {
			continue
		}
		series.RecomputeWindows(s, now)
		repairs += t.engine.BackfillAll(s)
		t.registry.Put(id, s)
	}

	if repairs > 0 {
		metrics.ContinuityRepairs.Add(float64(repairs))
	}
	if len(snap.Pools) > 0 {
		t.logger.WithFields(logrus.Fields{
			"pools":   len(snap.Pools),
			"repairs": repairs,
		}).Info("Restored state from snapshot")
	}
}
