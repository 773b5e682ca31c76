package series

import (
	"sort"

	"github.com/noma-protocol/pricefeed/pkg/models"
)

// DeriveInterval re-buckets an existing finer candle series into a coarser
// one without touching raw history. Merged buckets take max(high), min(low)
// and the chronologically last source close. The result is sorted ascending.
// Continuity is not corrected here; run ValidateAndRepair afterward.
func DeriveInterval(src []models.Candle, targetWidth int64) []models.Candle {
	if targetWidth <= 0 || len(src) == 0 {
		return nil
	}

	buckets := make(map[int64]*models.Candle, len(src))
	order := make([]int64, 0, len(src))
	for _, c := range src {
		bucket := (c.Timestamp / targetWidth) * targetWidth
		target, ok := buckets[bucket]
		if !ok {
			merged := models.Candle{
				Timestamp: bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
			}
			buckets[bucket] = &merged
			order = append(order, bucket)
			continue
		}
		if c.High > target.High {
			target.High = c.High
		}
		if c.Low < target.Low {
			target.Low = c.Low
		}
		target.Close = c.Close
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]models.Candle, 0, len(order))
	for _, bucket := range order {
		out = append(out, *buckets[bucket])
	}
	return out
}

// coarse intervals and the finer sources they derive from, best first
var derivations = []struct {
	target  string
	sources []string
}{
	{"6h", []string{"1h", "5m"}},
	{"12h", []string{"1h", "5m"}},
	{"24h", []string{"1h", "5m"}},
	{"1w", []string{"24h", "1h"}},
	{"1M", []string{"24h", "1h"}},
}

// DeriveCoarse fills in coarse interval streams that hold fewer than two
// candles by re-bucketing the best available finer source. Must re-run after
// any backfill rebuilds a source from scratch.
func (e *Engine) DeriveCoarse(s *models.PriceSeries) {
	for _, d := range derivations {
		if len(s.Candles[d.target]) >= 2 {
			continue
		}
		width, ok := models.IntervalWidth(d.target)
		if !ok {
			continue
		}
		for _, source := range d.sources {
			src := s.Candles[source]
			if len(src) < 2 {
				continue
			}
			derived := DeriveInterval(src, width)
			if e.cap > 0 && len(derived) > e.cap {
				derived = derived[len(derived)-e.cap:]
			}
			s.Candles[d.target] = derived
			break
		}
	}
}
