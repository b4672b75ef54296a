package generic

import (
	"encoding/json"
	"math"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/storage"
)

// ReadingStore keeps readings in day partitions per device.
type ReadingStore struct {
	log storage.Log
}

func NewReadingStore(root string) (*ReadingStore, error) {
	client := &storage.FsClient{}
	if err := client.Init(root, storage.StoreGroupReading); err != nil {
		return nil, err
	}
	return &ReadingStore{log: client}, nil
}

func readingKey(deviceID string) (string, error) {
	if err := checkKey(deviceID); err != nil {
		return "", err
	}
	return filepath.Join(storage.Readings, deviceID), nil
}

func (s *ReadingStore) Save(r *runtime.Reading) error {
	key, err := readingKey(r.DeviceID)
	if err != nil {
		return err
	}
	return errors.Wrapf(s.log.Append(key, r.Timestamp, r), "save reading of %s", r.DeviceID)
}

// Query returns the readings of deviceID taken in [from, to], oldest first. A positive limit
// keeps only the most recent ones.
func (s *ReadingStore) Query(deviceID string, from, to time.Time, limit int) ([]*runtime.Reading, error) {
	key, err := readingKey(deviceID)
	if err != nil {
		return nil, err
	}
	readings := make([]*runtime.Reading, 0)
	err = s.log.Scan(key, from, to, func(line []byte) error {
		r := &runtime.Reading{}
		if err := json.Unmarshal(line, r); err != nil {
			klog.V(3).InfoS("Skipped corrupt reading", "deviceId", deviceID, "err", err)
			return nil
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(to) {
			return nil
		}
		readings = append(readings, r)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query readings of %s", deviceID)
	}
	sort.SliceStable(readings, func(i, j int) bool { return readings[i].Timestamp.Before(readings[j].Timestamp) })
	if limit > 0 && len(readings) > limit {
		readings = readings[len(readings)-limit:]
	}
	return readings, nil
}

// Statistics aggregates count, min, max and average per parameter over [from, to].
func (s *ReadingStore) Statistics(deviceID string, from, to time.Time) (*runtime.ReadingStatistics, error) {
	readings, err := s.Query(deviceID, from, to, 0)
	if err != nil {
		return nil, err
	}
	stats := &runtime.ReadingStatistics{
		DeviceID:   deviceID,
		From:       from,
		To:         to,
		Count:      len(readings),
		Parameters: make(map[string]*runtime.ParameterStatistics),
	}
	sums := make(map[string]float64)
	for _, r := range readings {
		for name, v := range r.Values() {
			ps, ok := stats.Parameters[name]
			if !ok {
				ps = &runtime.ParameterStatistics{Min: math.Inf(1), Max: math.Inf(-1)}
				stats.Parameters[name] = ps
			}
			ps.Count++
			ps.Min = math.Min(ps.Min, v)
			ps.Max = math.Max(ps.Max, v)
			sums[name] += v
		}
	}
	for name, ps := range stats.Parameters {
		ps.Avg = sums[name] / float64(ps.Count)
	}
	return stats, nil
}

// Prune drops reading partitions older than retention for every device.
func (s *ReadingStore) Prune(retention time.Duration) (int, error) {
	keys, err := s.log.Keys(storage.Readings)
	if err != nil {
		return 0, err
	}
	before := time.Now().UTC().Add(-retention)
	total := 0
	for _, key := range keys {
		n, err := s.log.Prune(key, before)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "prune %s", key)
		}
	}
	return total, nil
}
