package series

import (
	"github.com/noma-protocol/pricefeed/pkg/models"
)

// Rolling window widths, unix milliseconds.
const (
	Window24h = dayMS
	Window7d  = weekMS
	Window30d = 30 * dayMS
)

// RecordVolume appends a swap volume event to the series' bounded log, adds
// it to the running total and recomputes every rolling window from the log.
// Recomputing from scratch rather than subtracting incrementally keeps the
// sums correct under clock skew and out-of-order events; the log is capped
// to the 30 day window so the scan stays bounded.
func RecordVolume(s *models.PriceSeries, amountUSD float64, ts, now int64) {
	s.VolumeHistory = append(s.VolumeHistory, models.VolumeSample{AmountUSD: amountUSD, Timestamp: ts})
	s.Volume.Total += amountUSD
	RecomputeWindows(s, now)
}

// RecomputeWindows rebuilds the 24h/7d/30d sums from the volume log and
// evicts entries that fell out of the longest window. Also run after loading
// persisted state so stale sums never survive a restart.
func RecomputeWindows(s *models.PriceSeries, now int64) {
	var h24, d7, d30 float64
	for _, v := range s.VolumeHistory {
		if v.Timestamp >= now-Window24h {
			h24 += v.AmountUSD
		}
		if v.Timestamp >= now-Window7d {
			d7 += v.AmountUSD
		}
		if v.Timestamp >= now-Window30d {
			d30 += v.AmountUSD
		}
	}
	s.Volume.H24 = h24
	s.Volume.D7 = d7
	s.Volume.D30 = d30
	if s.Volume.LastReset == 0 {
		s.Volume.LastReset = now
	}

	cutoff := now - Window30d
	i := 0
	for i < len(s.VolumeHistory) && s.VolumeHistory[i].Timestamp < cutoff {
		i++
	}
	s.VolumeHistory = s.VolumeHistory[i:]
}

// VolumeInWindow sums logged volume inside [now-width, now]; used by the
// per-interval stats query.
func VolumeInWindow(s *models.PriceSeries, width, now int64) float64 {
	var sum float64
	for _, v := range s.VolumeHistory {
		if v.Timestamp >= now-width && v.Timestamp <= now {
			sum += v.AmountUSD
		}
	}
	return sum
}
