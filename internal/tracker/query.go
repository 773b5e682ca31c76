package tracker

import (
	"github.com/noma-protocol/pricefeed/internal/series"
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// DefaultQueryLimit bounds candle query responses.
const DefaultQueryLimit = 100

// statsAnchorSlack is the fraction of the interval width within which a raw
// history sample may stand in for a missing anchor candle.
const statsAnchorSlack = 10

// Pools returns the display ids of every registered pool, sorted.
func (t *Tracker) Pools() []string {
	return t.registry.IDs()
}

// GetLatest returns the most recent price for a pool.
func (t *Tracker) GetLatest(pool string) (*models.Latest, error) {
	entry := t.registry.Get(pool)
	if entry == nil {
		return nil, ErrNoData
	}
	s := entry.Snapshot()
	if s.LatestPrice == nil || s.LastUpdated == nil {
		return nil, ErrNoData
	}
	return &models.Latest{Price: *s.LatestPrice, LastUpdated: *s.LastUpdated}, nil
}

// GetCandles returns a pool's candles for one interval, filtered to the
// inclusive [from, to] range when given and limited to the most recent
// `limit` entries. from/to of nil mean unbounded.
func (t *Tracker) GetCandles(pool, interval string, from, to *int64, limit int) ([]models.Candle, error) {
	canonical, err := models.NormalizeInterval(interval)
	if err != nil {
		return nil, invalidInterval(interval, err)
	}
	if from != nil && to != nil && *from > *to {
		return nil, invalidRange(*from, *to)
	}

	entry := t.registry.Get(pool)
	if entry == nil {
		return nil, ErrNoData
	}
	s := entry.Snapshot()
	return filterCandles(s.Candles[canonical], from, to, limit), nil
}

// GetAllIntervals returns every interval's candles with the same limiting
// rule applied per interval.
func (t *Tracker) GetAllIntervals(pool string, limit int) (map[string][]models.Candle, error) {
	entry := t.registry.Get(pool)
	if entry == nil {
		return nil, ErrNoData
	}
	s := entry.Snapshot()

	out := make(map[string][]models.Candle, len(models.Intervals))
	for _, iv := range models.Intervals {
		out[iv.Name] = filterCandles(s.Candles[iv.Name], nil, nil, limit)
	}
	return out, nil
}

// GetVolume returns the rolling volume sums for a pool.
func (t *Tracker) GetVolume(pool string) (*models.VolumeStats, error) {
	entry := t.registry.Get(pool)
	if entry == nil {
		return nil, ErrNoData
	}
	s := entry.Snapshot()
	stats := s.Volume
	return &stats, nil
}

// GetStats reports price change over one trailing interval window. The start
// price anchors on the candle whose bucket contains now-width, falling back
// to the nearest raw sample within a tenth of the width.
func (t *Tracker) GetStats(pool, interval string) (*models.Stats, error) {
	canonical, err := models.NormalizeInterval(interval)
	if err != nil {
		return nil, invalidInterval(interval, err)
	}
	width, _ := models.IntervalWidth(canonical)

	entry := t.registry.Get(pool)
	if entry == nil {
		return nil, ErrNoData
	}
	s := entry.Snapshot()
	if s.LatestPrice == nil {
		return nil, ErrPending
	}

	now := t.now()
	target := now - width

	startPrice, ok := anchorPrice(s, canonical, width, target)
	if !ok {
		return nil, ErrNotFound
	}

	current := *s.LatestPrice
	change := current - startPrice
	percentage := 0.0
	if startPrice != 0 {
		percentage = change / startPrice * 100
	}

	return &models.Stats{
		CurrentPrice:      current,
		StartPrice:        startPrice,
		PriceChange:       change,
		PercentageChange:  percentage,
		VolumeForInterval: series.VolumeInWindow(s, width, now),
	}, nil
}

// anchorPrice locates the historical price one interval width back.
func anchorPrice(s *models.PriceSeries, interval string, width, target int64) (float64, bool) {
	for _, c := range s.Candles[interval] {
		if c.Timestamp <= target && target < c.Timestamp+width {
			return c.Open, true
		}
	}

	// nearest raw sample within width/10 of the target
	slack := width / statsAnchorSlack
	best := int64(-1)
	var price float64
	for _, sample := range s.History {
		d := sample.Timestamp - target
		if d < 0 {
			d = -d
		}
		if d <= slack && (best < 0 || d < best) {
			best = d
			price = sample.Price
		}
	}
	return price, best >= 0
}

// filterCandles applies the inclusive range filter then keeps the most
// recent `limit` entries, preserving ascending order.
func filterCandles(candles []models.Candle, from, to *int64, limit int) []models.Candle {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	lo := 0
	hi := len(candles)
	if from != nil {
		for lo < hi && candles[lo].Timestamp < *from {
			lo++
		}
	}
	if to != nil {
		for hi > lo && candles[hi-1].Timestamp > *to {
			hi--
		}
	}

	window := candles[lo:hi]
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return append([]models.Candle(nil), window...)
}
