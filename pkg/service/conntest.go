package service

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
)

type ConnectionTestService struct {
	devices  DeviceRepository
	adapters connection.AdapterSource
	pool     *connection.Pool
}

func NewConnectionTestService(devices DeviceRepository, adapters connection.AdapterSource, pool *connection.Pool) *ConnectionTestService {
	return &ConnectionTestService{devices: devices, adapters: adapters, pool: pool}
}

// TestDevice probes a stored device on a fresh connection. The pooled session is dropped first
// so a serial port is free for the probe.
func (s *ConnectionTestService) TestDevice(ctx context.Context, deviceID string) (*runtime.ConnectionTestResult, error) {
	d, err := findDevice(s.devices, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.pool.Evict(ctx, d.ID); err != nil {
		klog.V(3).InfoS("Failed to evict session before test", "deviceId", d.ID, "err", err)
	}
	result := s.adapters.Get(d.Protocol).TestConnection(ctx, d.Configuration)
	status := runtime.ConnectionStatusConnected
	if !result.Success {
		status = runtime.ConnectionStatusError
	}
	if err := s.devices.UpdateConnectionStatus(d.ID, status, time.Now().UTC()); err != nil {
		klog.V(3).InfoS("Failed to update connection status", "deviceId", d.ID, "err", err)
	}
	klog.V(2).InfoS("Connection test", "deviceId", d.ID, "success", result.Success, "latencyMs", result.LatencyMs)
	return result, nil
}

// TestConfiguration probes a configuration that is not stored yet.
func (s *ConnectionTestService) TestConfiguration(ctx context.Context, p constant.Protocol, cfg runtime.Configuration) (*runtime.ConnectionTestResult, error) {
	if _, ok := constant.ProtocolToString[p]; !ok {
		return nil, fmt.Errorf("%w: %d", constant.ErrProtocol, p)
	}
	return s.adapters.Get(p).TestConnection(ctx, cfg), nil
}
