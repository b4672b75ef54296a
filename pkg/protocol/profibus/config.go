package profibus

import (
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var schema = adapter.NewSchema("PROFIBUS DP", []string{"interface", "stationAddress"}, map[string]*adapter.Property{
	"interface":       adapter.String("Master interface").Describe("DP master card or gateway the telegrams are sent through"),
	"stationAddress":  adapter.Integer("Station address").Between(1, 125),
	"masterAddress":   adapter.Integer("Master address").Between(0, 125).WithDefault(1),
	"baudRate":        adapter.Integer("Baud rate").OneOf(9600, 19200, 45450, 93750, 187500, 500000, 1500000, 3000000, 6000000, 12000000).WithDefault(1500000),
	"ppoType":         adapter.Integer("PPO type").Between(1, 5).WithDefault(1),
	"responseTimeout": adapter.Integer("Response timeout (ms)").Between(10, 10000).WithDefault(500),
	"retries":         adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	Interface       string `json:"interface"`
	StationAddress  uint8  `json:"stationAddress"`
	MasterAddress   uint8  `json:"masterAddress"`
	BaudRate        int    `json:"baudRate"`
	PPOType         int    `json:"ppoType"`
	ResponseTimeout int    `json:"responseTimeout"`
	Retries         int    `json:"retries"`
}

func (c *Config) endpoint() transport.Endpoint {
	return transport.Endpoint{
		Protocol:        constant.ProfibusDP,
		Network:         transport.NetworkFieldbus,
		Address:         c.Interface,
		ResponseTimeout: time.Duration(c.ResponseTimeout) * time.Millisecond,
	}
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil
	}
	if c.StationAddress != 0 && c.StationAddress == c.MasterAddress {
		return field.ErrorList{field.Invalid(field.NewPath("stationAddress"), c.StationAddress, "must differ from masterAddress")}
	}
	return nil
}
