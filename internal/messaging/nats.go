// Package messaging distributes price updates and closed candles over NATS.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/pkg/config"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// PriceUpdate is published on prices.<pool> for every ingested sample.
type PriceUpdate struct {
	Pool      string  `json:"pool"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// CandleClosed is published on candles.<pool>.<interval> when a bucket ends.
type CandleClosed struct {
	Pool     string        `json:"pool"`
	Interval string        `json:"interval"`
	Candle   models.Candle `json:"candle"`
}

// NATSClient handles NATS messaging operations
type NATSClient struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{
		conn:   conn,
		logger: logger.WithField("component", "nats"),
	}, nil
}

// Close closes the NATS connection
func (nc *NATSClient) Close() error {
	nc.conn.Close()
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// PublishPrice publishes a price update
func (nc *NATSClient) PublishPrice(update *PriceUpdate) error {
	return nc.publish(fmt.Sprintf("prices.%s", update.Pool), update)
}

// PublishCandle publishes a closed candle
func (nc *NATSClient) PublishCandle(closed *CandleClosed) error {
	return nc.publish(fmt.Sprintf("candles.%s.%s", closed.Pool, closed.Interval), closed)
}

// SubscribePrices subscribes to price updates for all pools
func (nc *NATSClient) SubscribePrices(handler func(*PriceUpdate)) (*nats.Subscription, error) {
	return nc.conn.Subscribe("prices.*", func(msg *nats.Msg) {
		var update PriceUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			nc.logger.WithError(err).Warn("Dropping malformed price update")
			return
		}
		handler(&update)
	})
}

func (nc *NATSClient) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", subject, err)
	}
	if err := nc.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
