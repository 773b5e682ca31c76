package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noma-protocol/pricefeed/internal/registry"
	"github.com/noma-protocol/pricefeed/internal/tracker"
	"github.com/noma-protocol/pricefeed/internal/websocket"
	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *tracker.Tracker) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.Config{}
	cfg.Tracker.DatapointCap = 100

	trk := tracker.New(&cfg.Tracker, registry.New(), nil, nil, nil, nil, nil, nil, logger)
	srv := NewServer(cfg, logger, trk, websocket.NewHub(logger), nil)
	return srv, trk
}

func doGet(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func seedPool(t *testing.T, trk *tracker.Tracker, pool string, n int) int64 {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Minute).UnixMilli()
	base = (base / 60_000) * 60_000
	for i := 0; i < n; i++ {
		require.NoError(t, trk.IngestPrice(pool, float64(100+i), base+int64(i)*60_000))
	}
	return base
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doGet(srv, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleGetPools(t *testing.T) {
	srv, trk := newTestServer(t)
	seedPool(t, trk, "0xaaa", 1)
	seedPool(t, trk, "0xbbb", 1)

	rec := doGet(srv, "/api/v1/pools")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pools []map[string]interface{} `json:"pools"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "0xaaa", body.Pools[0]["pool"])
	assert.Contains(t, body.Pools[0], "price")
}

func TestHandleGetLatest(t *testing.T) {
	srv, trk := newTestServer(t)
	seedPool(t, trk, "0xpool", 3)

	rec := doGet(srv, "/api/v1/pools/0xpool/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var latest models.Latest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, 102.0, latest.Price)
}

func TestHandleGetLatestUnknownPool(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(srv, "/api/v1/pools/0xmissing/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetCandles(t *testing.T) {
	srv, trk := newTestServer(t)
	seedPool(t, trk, "0xpool", 5)

	rec := doGet(srv, "/api/v1/pools/0xpool/candles?interval=1m&limit=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Candles []models.Candle `json:"candles"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	assert.Equal(t, 104.0, body.Candles[2].Close)
}

func TestHandleGetCandlesValidation(t *testing.T) {
	srv, trk := newTestServer(t)
	seedPool(t, trk, "0xpool", 1)

	cases := []string{
		"/api/v1/pools/0xpool/candles?interval=2h",
		"/api/v1/pools/0xpool/candles?from=notanumber",
		"/api/v1/pools/0xpool/candles?limit=0",
		"/api/v1/pools/0xpool/candles?from=200&to=100",
	}
	for _, path := range cases {
		rec := doGet(srv, path)
		assert.Equalf(t, http.StatusBadRequest, rec.Code, "path %s", path)
	}
}

func TestHandleGetAllIntervals(t *testing.T) {
	srv, trk := newTestServer(t)
	seedPool(t, trk, "0xpool", 2)

	rec := doGet(srv, "/api/v1/pools/0xpool/intervals")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]models.Candle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, len(models.Intervals))
	assert.Len(t, body["1m"], 2)
}

func TestHandleGetVolume(t *testing.T) {
	srv, trk := newTestServer(t)
	trk.IngestVolume("0xpool", []models.VolumeSample{
		{AmountUSD: 75, Timestamp: time.Now().UnixMilli()},
	})

	rec := doGet(srv, "/api/v1/pools/0xpool/volume")
	require.Equal(t, http.StatusOK, rec.Code)

	var vol models.VolumeStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vol))
	assert.Equal(t, 75.0, vol.H24)
	assert.Equal(t, 75.0, vol.Total)
}

func TestHandleGetStatsPending(t *testing.T) {
	srv, trk := newTestServer(t)
	// pool registered through volume ingestion but never priced
	trk.IngestVolume("0xpool", []models.VolumeSample{
		{AmountUSD: 1, Timestamp: time.Now().UnixMilli()},
	})

	rec := doGet(srv, "/api/v1/pools/0xpool/stats?interval=1h")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["error"])
}

func TestHandleGetStats(t *testing.T) {
	srv, trk := newTestServer(t)
	// 61 minutes of data so the 1h anchor candle exists
	seedPool(t, trk, "0xpool", 61)

	rec := doGet(srv, "/api/v1/pools/0xpool/stats?interval=1h")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 160.0, stats.CurrentPrice)
	assert.Greater(t, stats.CurrentPrice, stats.StartPrice)
	assert.Positive(t, stats.PercentageChange)
}

func TestUnknownRouteIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(srv, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
