package modbustcp

import (
	"net"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var schema = adapter.NewSchema("Modbus TCP", []string{"host"}, map[string]*adapter.Property{
	"host":              adapter.String("Host").Describe("IP address or host name of the drive or gateway"),
	"port":              adapter.Integer("Port").Between(1, 65535).WithDefault(502),
	"unitId":            adapter.Integer("Unit id").Between(0, 255).WithDefault(1),
	"connectionTimeout": adapter.Integer("Connection timeout (ms)").Between(100, 60000).WithDefault(5000),
	"responseTimeout":   adapter.Integer("Response timeout (ms)").Between(50, 30000).WithDefault(1000),
	"retries":           adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	UnitID            uint8  `json:"unitId"`
	ConnectionTimeout int    `json:"connectionTimeout"`
	ResponseTimeout   int    `json:"responseTimeout"`
	Retries           int    `json:"retries"`
}

func (c *Config) endpoint() transport.Endpoint {
	return transport.Endpoint{
		Protocol:        constant.ModbusTCP,
		Network:         transport.NetworkModbusTCP,
		Address:         net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		DialTimeout:     time.Duration(c.ConnectionTimeout) * time.Millisecond,
		ResponseTimeout: time.Duration(c.ResponseTimeout) * time.Millisecond,
	}
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	host, ok := cfg["host"].(string)
	if !ok || host == "" {
		return nil
	}
	return adapter.ValidateHost(field.NewPath("host"), host)
}
