package runtime

import (
	"context"
	"time"

	"vfdgateway/pkg/runtime/constant"
)

type LabeledCloser struct {
	Label  string
	Closer func(context.Context) error
}

type ResponseModel struct {
	Devices  interface{} `json:"devices,omitempty"`
	Readings interface{} `json:"readings,omitempty"`
	Mappings interface{} `json:"mappings,omitempty"`
}

type BitDefinition struct {
	Bit         uint8  `json:"bit" yaml:"bit"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// RegisterMapping binds a logical drive parameter to its register. The meaning of
// RegisterAddress depends on the protocol the drive is reached through.
type RegisterMapping struct {
	ParameterName             string              `json:"parameterName" yaml:"parameterName"`
	DisplayName               string              `json:"displayName" yaml:"displayName"`
	Category                  constant.Category   `json:"category" yaml:"category"`
	RegisterAddress           uint32              `json:"registerAddress" yaml:"registerAddress"`
	RegisterCount             uint16              `json:"registerCount,omitempty" yaml:"registerCount"`
	FunctionCode              uint8               `json:"functionCode,omitempty" yaml:"functionCode"`
	DataType                  constant.DataType   `json:"dataType" yaml:"dataType"`
	ScalingFactor             float64             `json:"scalingFactor,omitempty" yaml:"scalingFactor"`
	Offset                    float64             `json:"offset,omitempty" yaml:"offset"`
	Unit                      string              `json:"unit,omitempty" yaml:"unit"`
	ByteOrder                 constant.ByteOrder  `json:"byteOrder" yaml:"byteOrder"`
	WordOrder                 constant.ByteOrder  `json:"wordOrder" yaml:"wordOrder"`
	IsBitField                bool                `json:"isBitField,omitempty" yaml:"isBitField"`
	BitDefinitions            []BitDefinition     `json:"bitDefinitions,omitempty" yaml:"bitDefinitions"`
	Access                    constant.AccessMode `json:"access" yaml:"access"`
	MinValue                  *float64            `json:"minValue,omitempty" yaml:"minValue"`
	MaxValue                  *float64            `json:"maxValue,omitempty" yaml:"maxValue"`
	IsCritical                bool                `json:"isCritical,omitempty" yaml:"isCritical"`
	RecommendedPollIntervalMs int                 `json:"recommendedPollIntervalMs,omitempty" yaml:"recommendedPollIntervalMs"`
}

func (m *RegisterMapping) Count() uint16 {
	if m.RegisterCount == 0 {
		return 1
	}
	return m.RegisterCount
}

func (m *RegisterMapping) Code() uint8 {
	if m.FunctionCode == 0 {
		return constant.FunctionCodeReadHoldingRegisters
	}
	return m.FunctionCode
}

func (m *RegisterMapping) Scale() float64 {
	if m.ScalingFactor == 0 {
		return 1
	}
	return m.ScalingFactor
}

func (m *RegisterMapping) IsReadable() bool { return m.Access.Readable() }
func (m *RegisterMapping) IsWritable() bool { return m.Access.Writable() }

// InRange reports whether an engineering value honours the optional min/max bounds.
func (m *RegisterMapping) InRange(v float64) bool {
	if m.MinValue != nil && v < *m.MinValue {
		return false
	}
	if m.MaxValue != nil && v > *m.MaxValue {
		return false
	}
	return true
}

// BatchReadRequest is one contiguous read produced by the planner.
type BatchReadRequest struct {
	StartAddress uint32 `json:"startAddress"`
	Count        uint16 `json:"count"`
	FunctionCode uint8  `json:"functionCode"`
}

func (b BatchReadRequest) End() uint32 {
	return b.StartAddress + uint32(b.Count)
}

// Contains reports whether every register of m is covered by b.
func (b BatchReadRequest) Contains(m *RegisterMapping) bool {
	return m.Code() == b.FunctionCode &&
		m.RegisterAddress >= b.StartAddress &&
		m.RegisterAddress+uint32(m.Count()) <= b.End()
}

type ReadResult struct {
	Parameters map[string]float64 `json:"parameters"`
	StatusBits map[string]bool    `json:"statusBits"`
	Direction  Direction          `json:"direction,omitempty"`
	RawValues  map[string]float64 `json:"rawValues"`
	Timestamp  time.Time          `json:"timestampUtc"`
	LatencyMs  int64              `json:"latencyMs"`
	Errors     []string           `json:"errors"`
}

func NewReadResult() *ReadResult {
	return &ReadResult{
		Parameters: make(map[string]float64),
		StatusBits: make(map[string]bool),
		RawValues:  make(map[string]float64),
		Timestamp:  time.Now().UTC(),
		Errors:     make([]string, 0),
	}
}

type CommandResult struct {
	Success        bool       `json:"success"`
	Error          string     `json:"error,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAtUtc,omitempty"`
	LatencyMs      *int64     `json:"latencyMs,omitempty"`
}

func CommandSucceeded(start time.Time) *CommandResult {
	now := time.Now().UTC()
	latency := now.Sub(start).Milliseconds()
	return &CommandResult{Success: true, AcknowledgedAt: &now, LatencyMs: &latency}
}

func CommandFailed(err error, start time.Time) *CommandResult {
	latency := LatencyMs(start)
	return &CommandResult{Success: false, Error: err.Error(), LatencyMs: &latency}
}

type ConnectionTestResult struct {
	Success    bool     `json:"success"`
	LatencyMs  int64    `json:"latencyMs"`
	Error      string   `json:"error,omitempty"`
	SampleData []uint16 `json:"sampleData,omitempty"`
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

type PublishData struct {
	Payload Payload `json:"payload"`
}

type Payload struct {
	Data []TimeSeriesData `json:"data"`
}

type TimeSeriesData struct {
	Timestamp string      `json:"timestamp"`
	Values    []PointData `json:"values"`
}

type PointData struct {
	DataPointId string      `json:"dataPointId"`
	Value       interface{} `json:"value"`
}
