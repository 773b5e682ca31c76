package series

import (
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// ValidateAndRepair enforces open[i] == close[i-1] across every interval
// stream, fixing violations in place. Runs on every snapshot load and again
// before every save. Returns the number of candles repaired.
func ValidateAndRepair(s *models.PriceSeries) int {
	repairs := 0
	for _, iv := range models.Intervals {
		candles := s.Candles[iv.Name]
		for i := 1; i < len(candles); i++ {
			prev := candles[i-1].Close
			if candles[i].Open == prev {
				continue
			}
			candles[i].Open = prev
			// keep the candle well formed when the seeded open gaps
			// outside its traded range
			if prev > candles[i].High {
				candles[i].High = prev
			}
			if prev < candles[i].Low {
				candles[i].Low = prev
			}
			repairs++
		}
	}
	return repairs
}

// Backfill reconstructs an interval's candle list from the raw sample history
// when the list holds fewer than two entries. Replaying through the same
// bucketing rule as live aggregation makes the result continuous by
// construction. A no-op on already-populated intervals, so safe to re-run.
func (e *Engine) Backfill(s *models.PriceSeries, interval string) {
	if len(s.Candles[interval]) >= 2 {
		return
	}
	width, ok := models.IntervalWidth(interval)
	if !ok {
		return
	}

	var candles []models.Candle
	for _, sample := range s.History {
		candles = applyToCandles(candles, width, e.cap, sample.Price, sample.Timestamp)
	}
	if len(candles) == 0 {
		return
	}
	if s.Candles == nil {
		s.Candles = make(map[string][]models.Candle, len(models.Intervals))
	}
	s.Candles[interval] = candles
}

// BackfillAll runs Backfill for every interval, then rebuilds the coarse
// intervals from their finer sources and repairs any continuity drift the
// derivation introduced. Used when loading sparse or legacy state.
func (e *Engine) BackfillAll(s *models.PriceSeries) int {
	for _, iv := range models.Intervals {
		e.Backfill(s, iv.Name)
	}
	e.DeriveCoarse(s)
	return ValidateAndRepair(s)
}
