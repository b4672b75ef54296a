package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/metrics"
	"vfdgateway/pkg/registry"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/utils/uuidutil"
)

// ReadOptions narrows the mappings of one read. CriticalOnly wins over Category.
type ReadOptions struct {
	Category     *constant.Category `json:"category,omitempty"`
	CriticalOnly bool               `json:"criticalOnly,omitempty"`
}

type ReaderService struct {
	devices   DeviceRepository
	readings  ReadingRepository
	registry  *registry.Registry
	pool      *connection.Pool
	publisher Publisher
}

// NewReaderService builds a reader; publisher may be nil.
func NewReaderService(devices DeviceRepository, readings ReadingRepository, reg *registry.Registry, pool *connection.Pool, publisher Publisher) *ReaderService {
	return &ReaderService{devices: devices, readings: readings, registry: reg, pool: pool, publisher: publisher}
}

func (s *ReaderService) mappings(d *runtime.Device, opts ReadOptions) ([]*runtime.RegisterMapping, error) {
	switch {
	case opts.CriticalOnly:
		return s.registry.CriticalMappings(d.Brand)
	case opts.Category != nil:
		return s.registry.MappingsByCategory(d.Brand, *opts.Category)
	default:
		return s.registry.ReadableMappings(d.Brand)
	}
}

// Read captures the device's parameters, stores the reading and hands it to the publisher.
// Parameters that failed to read are listed in the reading's errors.
func (s *ReaderService) Read(ctx context.Context, deviceID string, opts ReadOptions) (*runtime.Reading, error) {
	d, err := findDevice(s.devices, deviceID)
	if err != nil {
		return nil, err
	}
	mappings, err := s.mappings(d, opts)
	if err != nil {
		return nil, err
	}

	reading, err := s.read(ctx, d, mappings)
	metrics.ObserveReading(err)
	if err != nil {
		return nil, err
	}

	if err := s.readings.Save(reading); err != nil {
		klog.ErrorS(err, "Failed to save reading", "deviceId", d.ID)
		return reading, err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(d, reading); err != nil {
			klog.V(2).InfoS("Failed to publish reading", "deviceId", d.ID, "err", err)
		}
	}
	return reading, nil
}

func (s *ReaderService) read(ctx context.Context, d *runtime.Device, mappings []*runtime.RegisterMapping) (*runtime.Reading, error) {
	lease, err := s.pool.Lease(ctx, d)
	if err != nil {
		s.markStatus(d.ID, runtime.ConnectionStatusError)
		return nil, err
	}
	defer lease.Release()

	rr, err := lease.Adapter.ReadParameters(ctx, lease.HandleID(), mappings)
	if err != nil {
		if lease.Handle.IsConnected() {
			s.markStatus(d.ID, runtime.ConnectionStatusError)
		} else {
			s.markStatus(d.ID, runtime.ConnectionStatusDisconnected)
		}
		return nil, errors.Wrapf(err, "read %s", d.ID)
	}
	if len(rr.Parameters) == 0 && len(mappings) > 0 {
		s.markStatus(d.ID, runtime.ConnectionStatusError)
	} else {
		s.markStatus(d.ID, runtime.ConnectionStatusConnected)
	}
	klog.V(4).InfoS("Read parameters", "deviceId", d.ID, "parameters", len(rr.Parameters), "errors", len(rr.Errors), "latencyMs", rr.LatencyMs)
	return runtime.NewReading(uuidutil.UUID(), d.ID, rr), nil
}

// History returns stored readings in [from, to]; a zero to means now.
func (s *ReaderService) History(deviceID string, from, to time.Time, limit int) ([]*runtime.Reading, error) {
	if _, err := findDevice(s.devices, deviceID); err != nil {
		return nil, err
	}
	from, to = window(from, to)
	return s.readings.Query(deviceID, from, to, limit)
}

func (s *ReaderService) Statistics(deviceID string, from, to time.Time) (*runtime.ReadingStatistics, error) {
	if _, err := findDevice(s.devices, deviceID); err != nil {
		return nil, err
	}
	from, to = window(from, to)
	return s.readings.Statistics(deviceID, from, to)
}

func (s *ReaderService) markStatus(id string, status runtime.ConnectionStatus) {
	if err := s.devices.UpdateConnectionStatus(id, status, time.Now().UTC()); err != nil {
		klog.V(3).InfoS("Failed to update connection status", "deviceId", id, "err", err)
	}
}

// DefaultHistoryWindow is used when a query names no start.
const DefaultHistoryWindow = 24 * time.Hour

func window(from, to time.Time) (time.Time, time.Time) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-DefaultHistoryWindow)
	}
	return from, to
}
