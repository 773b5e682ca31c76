package series

import (
	"github.com/noma-protocol/pricefeed/pkg/models"
)

const (
	dayMS  = int64(86_400_000)
	weekMS = 7 * dayMS
	yearMS = 365 * dayMS

	// raw history keeps a day of samples plus an hour of slack so a 24h
	// backfill never comes up short at the window edge
	historyMaxAge = dayMS + 3_600_000
)

// maxCandleAge is the time-based retention per interval. Intervals absent
// here are bounded by the datapoint cap only.
var maxCandleAge = map[string]int64{
	"1h":  weekMS,
	"24h": 30 * dayMS,
	"1w":  2 * yearMS,
	"1M":  10 * yearMS,
}

// Prune applies the retention policy after every ingestion: time bounds on
// raw history and the intervals above, the datapoint cap everywhere. Entries
// are only ever dropped from the head; order is preserved.
func (e *Engine) Prune(s *models.PriceSeries, now int64) {
	if cutoff := now - historyMaxAge; len(s.History) > 0 {
		s.History = trimSamples(s.History, cutoff)
	}

	for _, iv := range models.Intervals {
		candles := s.Candles[iv.Name]
		if len(candles) == 0 {
			continue
		}
		if maxAge, ok := maxCandleAge[iv.Name]; ok {
			cutoff := now - maxAge
			i := 0
			for i < len(candles) && candles[i].Timestamp < cutoff {
				i++
			}
			candles = candles[i:]
		}
		if e.cap > 0 && len(candles) > e.cap {
			candles = candles[len(candles)-e.cap:]
		}
		s.Candles[iv.Name] = candles
	}
}

func trimSamples(samples []models.PriceSample, cutoff int64) []models.PriceSample {
	i := 0
	for i < len(samples) && samples[i].Timestamp < cutoff {
		i++
	}
	return samples[i:]
}
