package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/metrics"
	"vfdgateway/pkg/registry"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/statusword"
)

// CommandRequest is one drive command. Value is the frequency for set_frequency and the
// engineering value for write_parameter.
type CommandRequest struct {
	Command   string   `json:"command"`
	Value     *float64 `json:"value,omitempty"`
	Parameter string   `json:"parameter,omitempty"`
}

type CommandService struct {
	devices  DeviceRepository
	registry *registry.Registry
	pool     *connection.Pool
}

func NewCommandService(devices DeviceRepository, reg *registry.Registry, pool *connection.Pool) *CommandService {
	return &CommandService{devices: devices, registry: reg, pool: pool}
}

// write is a resolved command: the register to write and how.
type write struct {
	mapping *runtime.RegisterMapping
	do      func(ctx context.Context, a adapter.Adapter, handleID string) *runtime.CommandResult
}

// Execute resolves req against the device's brand, rejects invalid values before any I/O and
// then writes through a pooled session.
func (s *CommandService) Execute(ctx context.Context, deviceID string, req CommandRequest) (*runtime.CommandResult, error) {
	d, err := findDevice(s.devices, deviceID)
	if err != nil {
		return nil, err
	}
	w, err := s.resolve(d, req)
	if err != nil {
		metrics.ObserveCommand(commandLabel(req.Command), false)
		return nil, err
	}

	lease, err := s.pool.Lease(ctx, d)
	if err != nil {
		metrics.ObserveCommand(commandLabel(req.Command), false)
		s.markStatus(d.ID, runtime.ConnectionStatusError)
		return nil, err
	}
	defer lease.Release()

	result := w.do(ctx, lease.Adapter, lease.HandleID())
	metrics.ObserveCommand(commandLabel(req.Command), result.Success)
	if result.Success {
		s.markStatus(d.ID, runtime.ConnectionStatusConnected)
		klog.V(3).InfoS("Command executed", "deviceId", d.ID, "command", req.Command, "register", w.mapping.RegisterAddress, "latencyMs", result.LatencyMs)
	} else {
		if !lease.Handle.IsConnected() {
			s.markStatus(d.ID, runtime.ConnectionStatusDisconnected)
		}
		klog.V(2).InfoS("Command failed", "deviceId", d.ID, "command", req.Command, "err", result.Error)
	}
	return result, nil
}

func (s *CommandService) resolve(d *runtime.Device, req CommandRequest) (*write, error) {
	cmd, ok := statusword.StringToCommand[req.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	switch cmd {
	case statusword.CommandSetSpeed:
		return s.speed(d, req)
	case statusword.CommandWriteParam:
		return s.parameter(d, req)
	default:
		word, ok := statusword.ProfileFor(d.Brand).CommandWord(cmd)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedCommand, cmd, d.Brand)
		}
		m, err := s.registry.ControlWordMapping(d.Brand)
		if err != nil {
			return nil, err
		}
		return &write{mapping: m, do: func(ctx context.Context, a adapter.Adapter, h string) *runtime.CommandResult {
			return a.WriteControlWord(ctx, h, word, m.RegisterAddress)
		}}, nil
	}
}

func (s *CommandService) speed(d *runtime.Device, req CommandRequest) (*write, error) {
	if req.Value == nil {
		return nil, errors.Wrap(ErrMissingValue, string(statusword.CommandSetSpeed))
	}
	m, err := s.registry.SpeedReferenceMapping(d.Brand)
	if err != nil {
		return nil, err
	}
	value := *req.Value
	if err := adapter.CheckRange(m, value); err != nil {
		return nil, err
	}
	return &write{mapping: m, do: func(ctx context.Context, a adapter.Adapter, h string) *runtime.CommandResult {
		return a.WriteSpeedReference(ctx, h, value, m.RegisterAddress, m.Scale())
	}}, nil
}

func (s *CommandService) parameter(d *runtime.Device, req CommandRequest) (*write, error) {
	if req.Value == nil {
		return nil, errors.Wrap(ErrMissingValue, string(statusword.CommandWriteParam))
	}
	m, err := s.registry.Mapping(d.Brand, req.Parameter)
	if err != nil {
		return nil, err
	}
	value := *req.Value
	if !m.IsWritable() {
		return nil, &adapter.ValidationError{Parameter: m.ParameterName, Value: value, Reason: "parameter is read-only"}
	}
	if m.Count() != 1 {
		return nil, &adapter.ValidationError{Parameter: m.ParameterName, Value: value, Reason: "only single register parameters can be written"}
	}
	if err := adapter.CheckRange(m, value); err != nil {
		return nil, err
	}
	raw := math.Round(codec.ReverseScaling(value, m.Scale(), m.Offset))
	if raw < math.MinInt16 || raw > math.MaxUint16 {
		return nil, &adapter.ValidationError{Parameter: m.ParameterName, Value: value, Reason: "does not fit a 16-bit register"}
	}
	return &write{mapping: m, do: func(ctx context.Context, a adapter.Adapter, h string) *runtime.CommandResult {
		return a.WriteRegister(ctx, h, m.RegisterAddress, uint16(int64(raw)))
	}}, nil
}

func commandLabel(c string) string {
	if _, ok := statusword.StringToCommand[c]; ok {
		return c
	}
	return "unknown"
}

func (s *CommandService) markStatus(id string, status runtime.ConnectionStatus) {
	if err := s.devices.UpdateConnectionStatus(id, status, time.Now().UTC()); err != nil {
		klog.V(3).InfoS("Failed to update connection status", "deviceId", id, "err", err)
	}
}
