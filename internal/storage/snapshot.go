// Package storage persists the aggregation state as a versioned JSON
// document. Persistence is best effort: a failed save is logged and retried
// on the next periodic attempt, and a failed or missing load boots the
// service with empty state.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/noma-protocol/pricefeed/pkg/models"
)

// SnapshotStore reads and writes the snapshot document at a fixed path.
type SnapshotStore struct {
	path   string
	logger *logrus.Entry
}

// NewSnapshotStore creates a store for the given file path.
func NewSnapshotStore(path string, logger *logrus.Logger) *SnapshotStore {
	return &SnapshotStore{
		path:   path,
		logger: logger.WithField("component", "snapshot"),
	}
}

// Load reads the snapshot document. A missing file or a legacy document
// without a "pools" key yields an empty snapshot; per-pool history from
// legacy layouts is intentionally not migrated.
func (ss *SnapshotStore) Load() (*models.Snapshot, error) {
	data, err := os.ReadFile(ss.path)
	if os.IsNotExist(err) {
		ss.logger.WithField("path", ss.path).Info("No snapshot found, starting empty")
		return emptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", ss.path, err)
	}

	// probe for the pools key before decoding the full document so legacy
	// layouts fall through to empty state instead of half-decoding
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", ss.path, err)
	}
	if _, ok := probe["pools"]; !ok {
		ss.logger.WithField("path", ss.path).Warn("Legacy snapshot without pools key, starting empty")
		return emptySnapshot(), nil
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", ss.path, err)
	}
	if snap.Pools == nil {
		snap.Pools = make(map[string]*models.PriceSeries)
	}
	return &snap, nil
}

// Save writes the document atomically (temp file then rename). The merged
// top-level volume log is rebuilt from the per-pool logs and capped.
func (ss *SnapshotStore) Save(snap *models.Snapshot) error {
	snap.Version = models.SnapshotVersion
	snap.VolumeHistory = mergeVolumeLogs(snap.Pools)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if dir := filepath.Dir(ss.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	tmp := ss.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, ss.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	ss.logger.WithFields(logrus.Fields{
		"path":  ss.path,
		"pools": len(snap.Pools),
		"bytes": len(data),
	}).Debug("Snapshot saved")
	return nil
}

func emptySnapshot() *models.Snapshot {
	return &models.Snapshot{
		Version: models.SnapshotVersion,
		Pools:   make(map[string]*models.PriceSeries),
	}
}

// mergeVolumeLogs flattens the per-pool volume logs into one recent-first
// capped log kept at the top level of the document for layout compatibility.
// It is ignored on load; the per-pool logs are authoritative.
func mergeVolumeLogs(pools map[string]*models.PriceSeries) []models.VolumeSample {
	var merged []models.VolumeSample
	for _, s := range pools {
		merged = append(merged, s.VolumeHistory...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })
	if len(merged) > models.SnapshotVolumeCap {
		merged = merged[len(merged)-models.SnapshotVolumeCap:]
	}
	return merged
}
