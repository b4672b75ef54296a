package profinet

import (
	"time"

	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var schema = adapter.NewSchema("PROFINET IO", []string{"host", "deviceName"}, map[string]*adapter.Property{
	"host":              adapter.String("Host").Describe("IP address assigned to the IO device"),
	"deviceName":        adapter.String("Name of station"),
	"sendClock":         adapter.Integer("Send clock (µs)").OneOf(250, 500, 1000, 2000, 4000).WithDefault(1000),
	"reductionRatio":    adapter.Integer("Reduction ratio").OneOf(1, 2, 4, 8, 16, 32, 64, 128, 256, 512).WithDefault(4),
	"watchdogFactor":    adapter.Integer("Watchdog factor").Between(1, 255).WithDefault(3),
	"slot":              adapter.Integer("Slot").Between(0, 0x7FFF).WithDefault(1),
	"subslot":           adapter.Integer("Subslot").Between(1, 0x8FFF).WithDefault(1),
	"ioDataWords":       adapter.Integer("IO data words").Between(1, 32).WithDefault(10),
	"connectionTimeout": adapter.Integer("Connection timeout (ms)").Between(100, 60000).WithDefault(5000),
	"responseTimeout":   adapter.Integer("Response timeout (ms)").Between(10, 30000).WithDefault(1000),
	"retries":           adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	Host              string `json:"host"`
	DeviceName        string `json:"deviceName"`
	SendClock         int    `json:"sendClock"`
	ReductionRatio    int    `json:"reductionRatio"`
	WatchdogFactor    int    `json:"watchdogFactor"`
	Slot              uint16 `json:"slot"`
	Subslot           uint16 `json:"subslot"`
	IODataWords       int    `json:"ioDataWords"`
	ConnectionTimeout int    `json:"connectionTimeout"`
	ResponseTimeout   int    `json:"responseTimeout"`
	Retries           int    `json:"retries"`
}

// CycleTime is the IO update period.
func (c *Config) CycleTime() time.Duration {
	return time.Duration(c.SendClock*c.ReductionRatio) * time.Microsecond
}

// Watchdog is how long the device waits for output data before it drops the AR.
func (c *Config) Watchdog() time.Duration {
	return c.CycleTime() * time.Duration(c.WatchdogFactor)
}

func (c *Config) endpoint() transport.Endpoint {
	timeout := time.Duration(c.ResponseTimeout) * time.Millisecond
	if w := c.Watchdog(); w > timeout {
		timeout = w
	}
	return transport.Endpoint{
		Protocol:        constant.Profinet,
		Network:         transport.NetworkFieldbus,
		Address:         c.Host,
		DialTimeout:     time.Duration(c.ConnectionTimeout) * time.Millisecond,
		ResponseTimeout: timeout,
	}
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	var allErrs field.ErrorList
	if host, ok := cfg["host"].(string); ok && host != "" {
		allErrs = append(allErrs, adapter.ValidateHost(field.NewPath("host"), host)...)
	}
	if name, ok := cfg["deviceName"].(string); ok && name != "" {
		for _, msg := range validation.IsDNS1123Subdomain(name) {
			allErrs = append(allErrs, field.Invalid(field.NewPath("deviceName"), name, msg))
		}
	}
	return allErrs
}
