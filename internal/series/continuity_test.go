package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noma-protocol/pricefeed/pkg/models"
)

func TestValidateAndRepairFixesGap(t *testing.T) {
	s := models.NewPriceSeries()
	for i := 0; i < 6; i++ {
		s.Candles["1h"] = append(s.Candles["1h"], models.Candle{
			Timestamp: t0 + int64(i)*3_600_000,
			Open:      100, High: 110, Low: 95, Close: 100,
		})
	}
	// persisted state carries a discontinuity at index 4
	s.Candles["1h"][3].Close = 100
	s.Candles["1h"][4].Open = 105

	repairs := ValidateAndRepair(s)
	assert.Equal(t, 1, repairs)
	assert.Equal(t, 100.0, s.Candles["1h"][4].Open)

	// repeat run finds nothing left to fix
	assert.Zero(t, ValidateAndRepair(s))
}

func TestValidateAndRepairKeepsCandleWellFormed(t *testing.T) {
	s := models.NewPriceSeries()
	s.Candles["1m"] = []models.Candle{
		{Timestamp: t0, Open: 10, High: 12, Low: 9, Close: 20},
		{Timestamp: t0 + 60_000, Open: 14, High: 15, Low: 13, Close: 14},
	}

	assert.Equal(t, 1, ValidateAndRepair(s))
	c := s.Candles["1m"][1]
	assert.Equal(t, 20.0, c.Open)
	assert.Equal(t, 20.0, c.High, "high widens to contain the repaired open")
	assert.Equal(t, 13.0, c.Low)
}

func TestBackfillRebuildsFromHistory(t *testing.T) {
	e := NewEngine(0)
	s := models.NewPriceSeries()

	prices := []float64{10, 11, 9, 12, 13, 8}
	for i, p := range prices {
		s.History = append(s.History, models.PriceSample{Price: p, Timestamp: t0 + int64(i)*30*60_000})
	}

	e.Backfill(s, "1h")

	candles := s.Candles["1h"]
	require.GreaterOrEqual(t, len(candles), 2)
	for i := 1; i < len(candles); i++ {
		assert.Equal(t, candles[i-1].Close, candles[i].Open)
	}
	assert.Equal(t, 10.0, candles[0].Open)
	assert.Equal(t, 8.0, candles[len(candles)-1].Close)
}

func TestBackfillIdempotent(t *testing.T) {
	e := NewEngine(0)
	s := models.NewPriceSeries()
	for i := 0; i < 8; i++ {
		s.History = append(s.History, models.PriceSample{Price: float64(10 + i), Timestamp: t0 + int64(i)*40*60_000})
	}

	e.Backfill(s, "1h")
	first := append([]models.Candle(nil), s.Candles["1h"]...)

	e.Backfill(s, "1h")
	assert.Equal(t, first, s.Candles["1h"], "re-running backfill on a populated interval is a no-op")
}

func TestBackfillSkipsPopulatedInterval(t *testing.T) {
	e := NewEngine(0)
	s := models.NewPriceSeries()
	existing := []models.Candle{
		{Timestamp: t0, Open: 1, High: 1, Low: 1, Close: 1},
		{Timestamp: t0 + 3_600_000, Open: 1, High: 2, Low: 1, Close: 2},
	}
	s.Candles["1h"] = append([]models.Candle(nil), existing...)
	s.History = []models.PriceSample{{Price: 99, Timestamp: t0}}

	e.Backfill(s, "1h")
	assert.Equal(t, existing, s.Candles["1h"])
}
