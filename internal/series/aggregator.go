// Package series implements the candle aggregation core: per-interval OHLC
// construction, continuity enforcement and backfill, coarse interval
// derivation, retention pruning and rolling volume windows. Everything here
// is a synchronous state transition over a *models.PriceSeries; locking and
// scheduling belong to the caller.
package series

import (
	"errors"
	"fmt"

	"github.com/noma-protocol/pricefeed/pkg/models"
)

// DefaultDatapointCap bounds every interval's candle list.
const DefaultDatapointCap = 100

// ErrStaleSample is returned when a sample's timestamp precedes the last
// applied sample. Out-of-order delivery is rejected rather than coalesced so
// candle buckets stay monotonic by construction.
var ErrStaleSample = errors.New("stale sample")

// Engine folds price samples into every interval's candle stream.
type Engine struct {
	cap int
}

// NewEngine creates an engine with the given per-interval datapoint cap.
// A cap of zero falls back to DefaultDatapointCap.
func NewEngine(datapointCap int) *Engine {
	if datapointCap <= 0 {
		datapointCap = DefaultDatapointCap
	}
	return &Engine{cap: datapointCap}
}

// Apply folds one price sample into all interval streams and the raw history.
// Samples must arrive with non-decreasing timestamps; anything older than the
// last applied sample is rejected with ErrStaleSample and leaves the series
// untouched.
func (e *Engine) Apply(s *models.PriceSeries, price float64, ts int64) error {
	if s.LastUpdated != nil && ts < *s.LastUpdated {
		return fmt.Errorf("%w: %d precedes last update %d", ErrStaleSample, ts, *s.LastUpdated)
	}

	p := price
	t := ts
	s.LatestPrice = &p
	s.LastUpdated = &t
	s.History = append(s.History, models.PriceSample{Price: price, Timestamp: ts})

	if s.Candles == nil {
		s.Candles = make(map[string][]models.Candle, len(models.Intervals))
	}
	for _, iv := range models.Intervals {
		s.Candles[iv.Name] = applyToCandles(s.Candles[iv.Name], iv.WidthMS, e.cap, price, ts)
	}
	return nil
}

// applyToCandles is the single bucketing rule shared by live aggregation and
// backfill. Every sample folds into the newest candle's high/low/close; when
// the sample falls past that candle's window it additionally opens the next
// bucket seeded at the same price, so each candle's open always equals the
// previous candle's close and continuity holds by construction.
func applyToCandles(candles []models.Candle, width int64, cap int, price float64, ts int64) []models.Candle {
	if n := len(candles); n > 0 {
		c := &candles[n-1]
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		if ts < c.Timestamp+width {
			return candles
		}
	}

	bucket := (ts / width) * width
	candles = append(candles, models.Candle{
		Timestamp: bucket,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	})
	if cap > 0 && len(candles) > cap {
		candles = candles[len(candles)-cap:]
	}
	return candles
}
