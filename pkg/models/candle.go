package models

// Candle is an OHLC summary of the price samples inside one interval bucket.
// Timestamp is the bucket start (inclusive), unix milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
}

// PriceSample is one raw observation from the price source.
type PriceSample struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// VolumeSample is one swap volume event in USD.
type VolumeSample struct {
	AmountUSD float64 `json:"amountUSD"`
	Timestamp int64   `json:"timestamp"`
}

// VolumeStats holds the rolling window sums recomputed from the volume log.
type VolumeStats struct {
	H24       float64 `json:"24h"`
	D7        float64 `json:"7d"`
	D30       float64 `json:"30d"`
	Total     float64 `json:"total"`
	LastReset int64   `json:"lastReset"`
}

// PriceSeries is the full aggregation state for one pool. All candle and
// volume mutation goes through internal/series; everything else reads copies.
type PriceSeries struct {
	LatestPrice   *float64            `json:"latestPrice"`
	LastUpdated   *int64              `json:"lastUpdated"`
	History       []PriceSample       `json:"history"`
	Candles       map[string][]Candle `json:"candles"`
	Volume        VolumeStats         `json:"volume"`
	VolumeHistory []VolumeSample      `json:"volumeHistory"`
}

// NewPriceSeries returns an empty series with a candle slot per interval.
func NewPriceSeries() *PriceSeries {
	candles := make(map[string][]Candle, len(Intervals))
	for _, iv := range Intervals {
		candles[iv.Name] = nil
	}
	return &PriceSeries{
		Candles: candles,
	}
}

// Clone returns a deep copy, used for consistent reads while ingestion runs.
func (s *PriceSeries) Clone() *PriceSeries {
	cp := &PriceSeries{
		Volume: s.Volume,
	}
	if s.LatestPrice != nil {
		p := *s.LatestPrice
		cp.LatestPrice = &p
	}
	if s.LastUpdated != nil {
		t := *s.LastUpdated
		cp.LastUpdated = &t
	}
	cp.History = append([]PriceSample(nil), s.History...)
	cp.VolumeHistory = append([]VolumeSample(nil), s.VolumeHistory...)
	cp.Candles = make(map[string][]Candle, len(s.Candles))
	for name, candles := range s.Candles {
		cp.Candles[name] = append([]Candle(nil), candles...)
	}
	return cp
}

// LatestCandle returns the open candle for an interval, nil when empty.
func (s *PriceSeries) LatestCandle(interval string) *Candle {
	candles := s.Candles[interval]
	if len(candles) == 0 {
		return nil
	}
	return &candles[len(candles)-1]
}
