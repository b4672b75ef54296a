package modbusrtu

import (
	"time"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

var schema = adapter.NewSchema("Modbus RTU", []string{"serialPort", "slaveId"}, map[string]*adapter.Property{
	"serialPort":      adapter.String("Serial port").Describe("Device path such as /dev/ttyUSB0 or COM3"),
	"baudRate":        adapter.Integer("Baud rate").OneOf(1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200).WithDefault(9600),
	"dataBits":        adapter.Integer("Data bits").OneOf(7, 8).WithDefault(8),
	"parity":          adapter.String("Parity").OneOf("none", "even", "odd").WithDefault("none"),
	"stopBits":        adapter.Integer("Stop bits").OneOf(1, 2).WithDefault(1),
	"slaveId":         adapter.Integer("Slave id").Between(1, 247),
	"responseTimeout": adapter.Integer("Response timeout (ms)").Between(50, 10000).WithDefault(1000),
	"retries":         adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	SerialPort      string `json:"serialPort"`
	BaudRate        int    `json:"baudRate"`
	DataBits        int    `json:"dataBits"`
	Parity          string `json:"parity"`
	StopBits        int    `json:"stopBits"`
	SlaveID         uint8  `json:"slaveId"`
	ResponseTimeout int    `json:"responseTimeout"`
	Retries         int    `json:"retries"`
}

func (c *Config) endpoint() transport.Endpoint {
	stopBits := constant.OneStopBit
	if c.StopBits == 2 {
		stopBits = constant.TwoStopBits
	}
	return transport.Endpoint{
		Protocol: constant.ModbusRTU,
		Network:  transport.NetworkSerial,
		Address:  c.SerialPort,
		Serial: &transport.SerialOptions{
			BaudRate: c.BaudRate,
			DataBits: c.DataBits,
			Parity:   constant.StringToParity[c.Parity],
			StopBits: stopBits,
		},
		ResponseTimeout: time.Duration(c.ResponseTimeout) * time.Millisecond,
		Framer:          codec.FrameLengthRTU,
	}
}
