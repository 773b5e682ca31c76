package models

// SnapshotVersion is the current persisted document version.
const SnapshotVersion = 2

// SnapshotVolumeCap bounds the merged volume log written at the top level of
// the snapshot document. Kept for layout compatibility; per-pool logs inside
// each PriceSeries are authoritative on load.
const SnapshotVolumeCap = 1000

// Snapshot is the persisted document. A legacy document without a "pools" key
// loads as empty state; per-pool history is intentionally not migrated.
type Snapshot struct {
	Version       int                     `json:"version"`
	LastSaved     int64                   `json:"lastSaved"`
	Pools         map[string]*PriceSeries `json:"pools"`
	VolumeHistory []VolumeSample          `json:"volumeHistory"`
}

// Latest is the getLatest query result.
type Latest struct {
	Price       float64 `json:"price"`
	LastUpdated int64   `json:"lastUpdated"`
}

// Stats is the getStats query result for one interval window.
type Stats struct {
	CurrentPrice      float64 `json:"currentPrice"`
	StartPrice        float64 `json:"startPrice"`
	PriceChange       float64 `json:"priceChange"`
	PercentageChange  float64 `json:"percentageChange"`
	VolumeForInterval float64 `json:"volumeForInterval"`
}
