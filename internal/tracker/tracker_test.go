package tracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noma-protocol/pricefeed/internal/registry"
	"github.com/noma-protocol/pricefeed/internal/series"
	"github.com/noma-protocol/pricefeed/internal/storage"
	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

const baseTS = int64(1_700_000_040_000) // minute-aligned

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestTracker(t *testing.T, store *storage.SnapshotStore) *Tracker {
	t.Helper()
	cfg := &config.TrackerConfig{
		PricePollInterval:  time.Second,
		VolumePollInterval: time.Second,
		DatapointCap:       100,
	}
	trk := New(cfg, registry.New(), nil, nil, store, nil, nil, nil, quietLogger())
	trk.now = func() int64 { return baseTS }
	return trk
}

// ingestMinutes applies one sample per minute starting at baseTS with prices
// 100, 101, ...
func ingestMinutes(t *testing.T, trk *Tracker, pool string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, trk.IngestPrice(pool, float64(100+i), baseTS+int64(i)*60_000))
	}
}

func TestIngestPriceAndGetLatest(t *testing.T) {
	trk := newTestTracker(t, nil)

	require.NoError(t, trk.IngestPrice("0xPool", 42.5, baseTS))

	latest, err := trk.GetLatest("0xpool")
	require.NoError(t, err)
	assert.Equal(t, 42.5, latest.Price)
	assert.Equal(t, baseTS, latest.LastUpdated)
}

func TestIngestPriceRejectsStale(t *testing.T) {
	trk := newTestTracker(t, nil)

	require.NoError(t, trk.IngestPrice("0xpool", 10, baseTS))
	err := trk.IngestPrice("0xpool", 99, baseTS-1)
	assert.ErrorIs(t, err, series.ErrStaleSample)

	latest, err := trk.GetLatest("0xpool")
	require.NoError(t, err)
	assert.Equal(t, 10.0, latest.Price)
}

func TestGetLatestUnknownPool(t *testing.T) {
	trk := newTestTracker(t, nil)
	_, err := trk.GetLatest("0xmissing")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGetCandlesRangeAndLimit(t *testing.T) {
	trk := newTestTracker(t, nil)
	ingestMinutes(t, trk, "0xpool", 10)

	from := baseTS + 2*60_000
	to := baseTS + 8*60_000
	candles, err := trk.GetCandles("0xpool", "1m", &from, &to, 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)

	// most recent three inside the range, ascending
	assert.Equal(t, baseTS+6*60_000, candles[0].Timestamp)
	assert.Equal(t, baseTS+7*60_000, candles[1].Timestamp)
	assert.Equal(t, baseTS+8*60_000, candles[2].Timestamp)
}

func TestGetCandlesAcceptsAliases(t *testing.T) {
	trk := newTestTracker(t, nil)
	ingestMinutes(t, trk, "0xpool", 3)

	byName, err := trk.GetCandles("0xpool", "1m", nil, nil, 0)
	require.NoError(t, err)
	byAlias, err := trk.GetCandles("0xpool", "1", nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, byName, byAlias)
}

func TestGetCandlesInvalidInterval(t *testing.T) {
	trk := newTestTracker(t, nil)
	ingestMinutes(t, trk, "0xpool", 1)

	_, err := trk.GetCandles("0xpool", "2h", nil, nil, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetCandlesInvalidRange(t *testing.T) {
	trk := newTestTracker(t, nil)
	ingestMinutes(t, trk, "0xpool", 1)

	from := baseTS + 60_000
	to := baseTS
	_, err := trk.GetCandles("0xpool", "1m", &from, &to, 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetCandlesUnknownPool(t *testing.T) {
	trk := newTestTracker(t, nil)
	_, err := trk.GetCandles("0xmissing", "1m", nil, nil, 0)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGetAllIntervals(t *testing.T) {
	trk := newTestTracker(t, nil)
	ingestMinutes(t, trk, "0xpool", 5)

	all, err := trk.GetAllIntervals("0xpool", 0)
	require.NoError(t, err)
	require.Len(t, all, len(models.Intervals))
	assert.Len(t, all["1m"], 5)
	assert.Len(t, all["1h"], 1)
}

func TestGetVolume(t *testing.T) {
	trk := newTestTracker(t, nil)
	trk.IngestVolume("0xpool", []models.VolumeSample{
		{AmountUSD: 100, Timestamp: baseTS - 3_600_000},
		{AmountUSD: 50, Timestamp: baseTS - 60_000},
	})

	vol, err := trk.GetVolume("0xpool")
	require.NoError(t, err)
	assert.Equal(t, 150.0, vol.H24)
	assert.Equal(t, 150.0, vol.Total)
}

func TestGetStatsComputesChange(t *testing.T) {
	trk := newTestTracker(t, nil)
	require.NoError(t, trk.IngestPrice("0xpool", 100, baseTS))
	require.NoError(t, trk.IngestPrice("0xpool", 110, baseTS+3_600_000))
	trk.now = func() int64 { return baseTS + 3_600_000 }

	stats, err := trk.GetStats("0xpool", "1h")
	require.NoError(t, err)
	assert.Equal(t, 110.0, stats.CurrentPrice)
	assert.Equal(t, 100.0, stats.StartPrice)
	assert.Equal(t, 10.0, stats.PriceChange)
	assert.InDelta(t, 10.0, stats.PercentageChange, 1e-9)
}

func TestGetStatsPendingVsNotFound(t *testing.T) {
	trk := newTestTracker(t, nil)

	// unknown pool
	_, err := trk.GetStats("0xmissing", "1h")
	assert.ErrorIs(t, err, ErrNoData)

	// registered but no sample applied yet
	trk.registry.GetOrCreate("0xempty")
	_, err = trk.GetStats("0xempty", "1h")
	assert.ErrorIs(t, err, ErrPending)

	// has a price but nothing near the anchor point one window back
	require.NoError(t, trk.IngestPrice("0xfresh", 10, baseTS))
	trk.now = func() int64 { return baseTS + 10*3_600_000 }
	_, err = trk.GetStats("0xfresh", "1h")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOnPriceUpdateFires(t *testing.T) {
	trk := newTestTracker(t, nil)
	got := make(chan float64, 1)
	trk.OnPriceUpdate(func(pool string, price float64, ts int64) {
		got <- price
	})

	require.NoError(t, trk.IngestPrice("0xpool", 7.5, baseTS))

	select {
	case price := <-got:
		assert.Equal(t, 7.5, price)
	case <-time.After(time.Second):
		t.Fatal("price callback never fired")
	}
}

func TestTrackRegistersPool(t *testing.T) {
	trk := newTestTracker(t, nil)
	require.NoError(t, trk.Start(context.Background()))
	defer trk.Stop()

	trk.Track("0xPool")
	trk.Track("0xpool") // same pool, different casing

	assert.Equal(t, []string{"0xPool"}, trk.Pools())
}

func TestSnapshotRoundtripAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := storage.NewSnapshotStore(path, quietLogger())

	first := newTestTracker(t, store)
	require.NoError(t, first.Start(context.Background()))
	ingestMinutes(t, first, "0xpool", 5)
	first.IngestVolume("0xpool", []models.VolumeSample{{AmountUSD: 250, Timestamp: baseTS}})
	require.NoError(t, first.Stop())

	second := newTestTracker(t, store)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()

	latest, err := second.GetLatest("0xpool")
	require.NoError(t, err)
	assert.Equal(t, 104.0, latest.Price)

	candles, err := second.GetCandles("0xpool", "1m", nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, candles, 5)

	vol, err := second.GetVolume("0xpool")
	require.NoError(t, err)
	assert.Equal(t, 250.0, vol.Total)
}

func TestCollectClosedDetectsRollover(t *testing.T) {
	// one minute past a 5m boundary, so only the 1m bucket rolls over
	ts := int64(1_699_999_860_000)

	e := series.NewEngine(100)
	s := models.NewPriceSeries()
	require.NoError(t, e.Apply(s, 10, ts))

	before := lastBuckets(s)
	require.NoError(t, e.Apply(s, 11, ts+60_000))
	closed := collectClosed(s, before, "0xpool")

	require.Len(t, closed, 1)
	assert.Equal(t, "1m", closed[0].Interval)
	assert.Equal(t, ts, closed[0].Candle.Timestamp)
	assert.Equal(t, 11.0, closed[0].Candle.Close, "rollover sample is the final close")
}
