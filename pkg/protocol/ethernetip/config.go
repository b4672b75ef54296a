package ethernetip

import (
	"net"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var schema = adapter.NewSchema("EtherNet/IP", []string{"host"}, map[string]*adapter.Property{
	"host":              adapter.String("Host"),
	"inputAssembly":     adapter.Integer("Input assembly instance").Between(1, 65535).WithDefault(100),
	"outputAssembly":    adapter.Integer("Output assembly instance").Between(1, 65535).WithDefault(150),
	"configAssembly":    adapter.Integer("Configuration assembly instance").Between(1, 65535).WithDefault(151),
	"rpi":               adapter.Integer("Requested packet interval (ms)").Between(1, 3200).WithDefault(10),
	"connectionTimeout": adapter.Integer("Connection timeout (ms)").Between(100, 60000).WithDefault(5000),
	"responseTimeout":   adapter.Integer("Response timeout (ms)").Between(10, 30000).WithDefault(1000),
	"retries":           adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	Host              string `json:"host"`
	InputAssembly     uint16 `json:"inputAssembly"`
	OutputAssembly    uint16 `json:"outputAssembly"`
	ConfigAssembly    uint16 `json:"configAssembly"`
	RPI               int    `json:"rpi"`
	ConnectionTimeout int    `json:"connectionTimeout"`
	ResponseTimeout   int    `json:"responseTimeout"`
	Retries           int    `json:"retries"`
}

func (c *Config) connectionTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeout) * time.Millisecond
}

func (c *Config) responseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeout) * time.Millisecond
}

func (c *Config) endpoint() transport.Endpoint {
	return transport.Endpoint{
		Protocol:        constant.EthernetIP,
		Address:         net.JoinHostPort(c.Host, transport.CIPPort),
		DialTimeout:     c.connectionTimeout(),
		ResponseTimeout: c.responseTimeout(),
	}
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	var allErrs field.ErrorList
	if host, ok := cfg["host"].(string); ok && host != "" {
		allErrs = append(allErrs, adapter.ValidateHost(field.NewPath("host"), host)...)
	}
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return allErrs
	}
	if c.InputAssembly != 0 && c.InputAssembly == c.OutputAssembly {
		allErrs = append(allErrs, field.Invalid(field.NewPath("outputAssembly"), c.OutputAssembly, "must differ from inputAssembly"))
	}
	return allErrs
}
