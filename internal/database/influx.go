// Package database archives closed candles to InfluxDB. The archive is an
// optional sink; the in-memory series remains the source of truth for
// queries and the archiver never blocks ingestion.
package database

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// InfluxClient writes candles to an InfluxDB bucket.
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Entry
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())))

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.WithField("component", "influx"),
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB connectivity
func (ic *InfluxClient) Health(ctx context.Context) error {
	ok, err := ic.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping InfluxDB: %w", err)
	}
	if !ok {
		return fmt.Errorf("InfluxDB ping returned not ready")
	}
	return nil
}

// WriteCandle archives one closed candle.
func (ic *InfluxClient) WriteCandle(ctx context.Context, pool, interval string, candle models.Candle) error {
	point := influxdb2.NewPoint(
		"candles",
		map[string]string{
			"pool":     pool,
			"interval": interval,
		},
		map[string]interface{}{
			"open":  candle.Open,
			"high":  candle.High,
			"low":   candle.Low,
			"close": candle.Close,
		},
		time.UnixMilli(candle.Timestamp),
	)
	if err := ic.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write candle for %s/%s: %w", pool, interval, err)
	}
	return nil
}
