// Package adapter defines the contract every protocol adapter implements and the shared engine
// that turns register mappings into readings.
package adapter

import (
	"context"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
)

// Adapter is the capability set of one wire protocol. Callers hold handle ids only; the adapter
// owns the transport behind them.
type Adapter interface {
	Protocol() constant.Protocol
	Connect(ctx context.Context, cfg runtime.Configuration) (*ConnectionHandle, error)
	Disconnect(ctx context.Context, handleID string) error
	TestConnection(ctx context.Context, cfg runtime.Configuration) *runtime.ConnectionTestResult
	ReadParameters(ctx context.Context, handleID string, mappings []*runtime.RegisterMapping) (*runtime.ReadResult, error)
	ReadRegister(ctx context.Context, handleID string, address uint32, count uint16, functionCode uint8) ([]byte, error)
	WriteControlWord(ctx context.Context, handleID string, word uint16, address uint32) *runtime.CommandResult
	WriteSpeedReference(ctx context.Context, handleID string, value float64, address uint32, scalingFactor float64) *runtime.CommandResult
	WriteRegister(ctx context.Context, handleID string, address uint32, value uint16) *runtime.CommandResult
	ValidateConfiguration(cfg runtime.Configuration) *runtime.ValidationResult
	ConfigurationSchema() *Schema
	DefaultConfiguration() runtime.Configuration
}

// Driver is the protocol specific half of an adapter: configuration shape and session setup.
type Driver interface {
	Protocol() constant.Protocol
	Schema() *Schema
	// Batching reports whether one read may cover several mappings.
	Batching() bool
	// Open receives a configuration that already passed validation with defaults applied.
	Open(ctx context.Context, cfg runtime.Configuration) (Session, error)
}

// ConfigValidator is implemented by drivers with rules a schema cannot express, such as fields
// required only for one transport.
type ConfigValidator interface {
	ValidateConfig(cfg runtime.Configuration) field.ErrorList
}

// Session is one live link to a drive.
type Session interface {
	// ReadRegisters returns count*2 bytes, big-endian per register unless the protocol says
	// otherwise.
	ReadRegisters(ctx context.Context, address uint32, count uint16, functionCode uint8) ([]byte, error)
	WriteRegister(ctx context.Context, address uint32, value uint16) error
	// Probe performs the lightest read that proves the drive answers.
	Probe(ctx context.Context) ([]uint16, error)
	Metadata() map[string]string
	Close(ctx context.Context) error
}
