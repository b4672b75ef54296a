package adapter

import (
	"context"
	"math"
	"time"

	"k8s.io/klog/v2"

	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/metrics"
	"vfdgateway/pkg/planner"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var _ Adapter = (*Base)(nil)

// Base implements Adapter on top of a Driver. Protocol packages embed it.
type Base struct {
	driver  Driver
	planner planner.Options
	handles *handleTable
}

type Option func(*Base)

func WithPlanner(o planner.Options) Option {
	return func(b *Base) {
		b.planner = o
	}
}

func NewBase(d Driver, opts ...Option) *Base {
	b := &Base{driver: d, planner: planner.DefaultOptions(), handles: newHandleTable()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Protocol() constant.Protocol {
	return b.driver.Protocol()
}

func (b *Base) observe(operation string, start time.Time, err error) {
	metrics.ObserveOperation(b.driver.Protocol().String(), operation, start, err)
}

func (b *Base) prepare(cfg runtime.Configuration) (runtime.Configuration, error) {
	full := b.driver.Schema().WithDefaults(cfg)
	allErrs := b.driver.Schema().Validate(full)
	if v, ok := b.driver.(ConfigValidator); ok {
		allErrs = append(allErrs, v.ValidateConfig(full)...)
	}
	if len(allErrs) > 0 {
		return nil, &ConfigurationError{Protocol: b.driver.Protocol(), Errs: allErrs}
	}
	return full, nil
}

func (b *Base) Connect(ctx context.Context, cfg runtime.Configuration) (h *ConnectionHandle, err error) {
	start := time.Now()
	defer func() { b.observe("connect", start, err) }()

	full, err := b.prepare(cfg)
	if err != nil {
		return nil, err
	}
	session, err := b.driver.Open(ctx, full)
	if err != nil {
		klog.V(2).InfoS("Failed to connect device", "protocol", b.driver.Protocol(), "err", err)
		return nil, &ConnectionError{Protocol: b.driver.Protocol(), Latency: time.Since(start), Err: err}
	}
	h = newHandle(b.driver.Protocol(), session.Metadata())
	b.handles.add(h, session)
	metrics.OpenConnections.WithLabelValues(b.driver.Protocol().String()).Inc()
	klog.V(3).InfoS("Device connected", "protocol", b.driver.Protocol(), "handle", h.ID, "metadata", h.Metadata)
	return h, nil
}

func (b *Base) Disconnect(ctx context.Context, handleID string) (err error) {
	start := time.Now()
	defer func() { b.observe("disconnect", start, err) }()

	e, ok := b.handles.remove(handleID)
	if !ok {
		return &NotConnectedError{HandleID: handleID}
	}
	e.handle.markDisconnected()
	metrics.OpenConnections.WithLabelValues(b.driver.Protocol().String()).Dec()
	if err := e.session.Close(ctx); err != nil {
		return &ConnectionError{Protocol: b.driver.Protocol(), Latency: time.Since(start), Err: err}
	}
	klog.V(3).InfoS("Device disconnected", "protocol", b.driver.Protocol(), "handle", handleID)
	return nil
}

func (b *Base) TestConnection(ctx context.Context, cfg runtime.Configuration) *runtime.ConnectionTestResult {
	start := time.Now()
	result := &runtime.ConnectionTestResult{}
	var err error
	defer func() { b.observe("test", start, err) }()

	full, err := b.prepare(cfg)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	session, err := b.driver.Open(ctx, full)
	if err != nil {
		result.LatencyMs = runtime.LatencyMs(start)
		result.Error = err.Error()
		return result
	}
	defer func() {
		if cerr := session.Close(ctx); cerr != nil {
			klog.V(2).InfoS("Failed to close test session", "protocol", b.driver.Protocol(), "err", cerr)
		}
	}()
	sample, err := session.Probe(ctx)
	result.LatencyMs = runtime.LatencyMs(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.SampleData = sample
	return result
}

func (b *Base) lookup(handleID string) (*entry, error) {
	e, ok := b.handles.get(handleID)
	if !ok || !e.handle.IsConnected() {
		return nil, &NotConnectedError{HandleID: handleID}
	}
	return e, nil
}

// settle stamps activity on success and retires the handle when the link broke.
func (b *Base) settle(e *entry, err error) {
	if err == nil {
		e.handle.Touch()
		return
	}
	if transport.IsBroken(err) {
		klog.V(2).InfoS("Device link lost", "protocol", b.driver.Protocol(), "handle", e.handle.ID, "err", err)
		e.handle.markDisconnected()
	}
}

func (b *Base) ReadRegister(ctx context.Context, handleID string, address uint32, count uint16, functionCode uint8) (buf []byte, err error) {
	start := time.Now()
	defer func() { b.observe("read_register", start, err) }()

	e, err := b.lookup(handleID)
	if err != nil {
		return nil, err
	}
	buf, err = e.session.ReadRegisters(ctx, address, count, functionCode)
	b.settle(e, err)
	return buf, err
}

func (b *Base) WriteRegister(ctx context.Context, handleID string, address uint32, value uint16) *runtime.CommandResult {
	start := time.Now()
	e, err := b.lookup(handleID)
	if err == nil {
		err = e.session.WriteRegister(ctx, address, value)
		b.settle(e, err)
	}
	b.observe("write_register", start, err)
	if err != nil {
		return runtime.CommandFailed(err, start)
	}
	return runtime.CommandSucceeded(start)
}

func (b *Base) WriteControlWord(ctx context.Context, handleID string, word uint16, address uint32) *runtime.CommandResult {
	return b.WriteRegister(ctx, handleID, address, word)
}

// WriteSpeedReference scales value to a raw register. Negative raws go out as two's complement.
func (b *Base) WriteSpeedReference(ctx context.Context, handleID string, value float64, address uint32, scalingFactor float64) *runtime.CommandResult {
	raw := codec.ReverseScaling(value, scalingFactor, 0)
	if raw < math.MinInt16 || raw > math.MaxUint16 {
		return runtime.CommandFailed(&ValidationError{Parameter: "speed_reference", Value: value, Reason: "does not fit a 16-bit register"}, time.Now())
	}
	return b.WriteRegister(ctx, handleID, address, uint16(int64(raw)))
}

func (b *Base) ReadParameters(ctx context.Context, handleID string, mappings []*runtime.RegisterMapping) (result *runtime.ReadResult, err error) {
	start := time.Now()
	defer func() { b.observe("read_parameters", start, err) }()

	e, err := b.lookup(handleID)
	if err != nil {
		return nil, err
	}
	result = b.readParameters(ctx, e, mappings)
	metrics.ParameterErrors.WithLabelValues(b.driver.Protocol().String()).Add(float64(len(result.Errors)))
	return result, nil
}

func (b *Base) ValidateConfiguration(cfg runtime.Configuration) *runtime.ValidationResult {
	_, err := b.prepare(cfg)
	if err == nil {
		return &runtime.ValidationResult{Valid: true, Errors: []string{}}
	}
	return &runtime.ValidationResult{Valid: false, Errors: err.(*ConfigurationError).Messages()}
}

func (b *Base) ConfigurationSchema() *Schema {
	return b.driver.Schema()
}

func (b *Base) DefaultConfiguration() runtime.Configuration {
	return b.driver.Schema().Defaults()
}

// OpenHandles is the number of live handles.
func (b *Base) OpenHandles() int {
	return b.handles.len()
}
