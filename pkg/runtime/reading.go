package runtime

import (
	"time"
)

// Reading is one persisted capture of a drive's parameters. Parameters with a well-known name
// land in their own field; the rest go to CustomParameters.
type Reading struct {
	ID                string             `json:"id"`
	DeviceID          string             `json:"deviceId"`
	Timestamp         time.Time          `json:"timestamp"`
	OutputFrequency   *float64           `json:"outputFrequency,omitempty"`
	MotorSpeed        *float64           `json:"motorSpeed,omitempty"`
	MotorCurrent      *float64           `json:"motorCurrent,omitempty"`
	MotorVoltage      *float64           `json:"motorVoltage,omitempty"`
	DCBusVoltage      *float64           `json:"dcBusVoltage,omitempty"`
	OutputPower       *float64           `json:"outputPower,omitempty"`
	MotorTorque       *float64           `json:"motorTorque,omitempty"`
	DriveTemperature  *float64           `json:"driveTemperature,omitempty"`
	EnergyConsumption *float64           `json:"energyConsumption,omitempty"`
	RunHours          *float64           `json:"runHours,omitempty"`
	FaultCode         *float64           `json:"faultCode,omitempty"`
	CustomParameters  map[string]float64 `json:"customParameters,omitempty"`
	StatusBits        map[string]bool    `json:"statusBits,omitempty"`
	Direction         Direction          `json:"direction,omitempty"`
	Errors            []string           `json:"errors,omitempty"`
	LatencyMs         int64              `json:"latencyMs"`
}

var wellKnownParameters = map[string]func(r *Reading) **float64{
	"output_frequency":   func(r *Reading) **float64 { return &r.OutputFrequency },
	"motor_speed":        func(r *Reading) **float64 { return &r.MotorSpeed },
	"motor_current":      func(r *Reading) **float64 { return &r.MotorCurrent },
	"motor_voltage":      func(r *Reading) **float64 { return &r.MotorVoltage },
	"dc_bus_voltage":     func(r *Reading) **float64 { return &r.DCBusVoltage },
	"output_power":       func(r *Reading) **float64 { return &r.OutputPower },
	"motor_torque":       func(r *Reading) **float64 { return &r.MotorTorque },
	"drive_temperature":  func(r *Reading) **float64 { return &r.DriveTemperature },
	"energy_consumption": func(r *Reading) **float64 { return &r.EnergyConsumption },
	"run_hours":          func(r *Reading) **float64 { return &r.RunHours },
	"fault_code":         func(r *Reading) **float64 { return &r.FaultCode },
}

func IsWellKnownParameter(name string) bool {
	_, ok := wellKnownParameters[name]
	return ok
}

func NewReading(id, deviceID string, rr *ReadResult) *Reading {
	r := &Reading{
		ID:         id,
		DeviceID:   deviceID,
		Timestamp:  rr.Timestamp,
		StatusBits: rr.StatusBits,
		Direction:  rr.Direction,
		Errors:     rr.Errors,
		LatencyMs:  rr.LatencyMs,
	}
	for name, v := range rr.Parameters {
		r.Set(name, v)
	}
	return r
}

func (r *Reading) Set(name string, v float64) {
	if field, ok := wellKnownParameters[name]; ok {
		value := v
		*field(r) = &value
		return
	}
	if r.CustomParameters == nil {
		r.CustomParameters = make(map[string]float64)
	}
	r.CustomParameters[name] = v
}

// Values flattens the reading back into parameter name to value.
func (r *Reading) Values() map[string]float64 {
	out := make(map[string]float64, len(r.CustomParameters)+len(wellKnownParameters))
	for name, field := range wellKnownParameters {
		if p := *field(r); p != nil {
			out[name] = *p
		}
	}
	for name, v := range r.CustomParameters {
		out[name] = v
	}
	return out
}

type ParameterStatistics struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

type ReadingStatistics struct {
	DeviceID   string                          `json:"deviceId"`
	From       time.Time                       `json:"from"`
	To         time.Time                       `json:"to"`
	Count      int                             `json:"count"`
	Parameters map[string]*ParameterStatistics `json:"parameters"`
}
