package bacnet

import (
	"net"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

const (
	TransportIP   = "ip"
	TransportMSTP = "mstp"
)

func newSchema(title, defaultTransport string) *adapter.Schema {
	return adapter.NewSchema(title, []string{"deviceInstance"}, map[string]*adapter.Property{
		"transport":      adapter.String("Data link").OneOf(TransportIP, TransportMSTP).WithDefault(defaultTransport),
		"deviceInstance": adapter.Integer("Device instance").Between(0, 4194302),
		"host":           adapter.String("Host").Describe("BACnet/IP only"),
		"port":           adapter.Integer("UDP port").Between(1, 65535).WithDefault(47808),
		"serialPort":     adapter.String("Serial port").Describe("MS/TP only"),
		"macAddress":     adapter.Integer("MS/TP MAC address").Between(0, 127),
		"baudRate":       adapter.Integer("MS/TP baud rate").OneOf(9600, 19200, 38400, 57600, 76800, 115200).WithDefault(38400),
		"apduTimeout":    adapter.Integer("APDU timeout (ms)").Between(100, 60000).WithDefault(3000),
		"writePriority":  adapter.Integer("Write priority").Between(0, 16).WithDefault(16),
		"retries":        adapter.Integer("APDU retries").Between(0, 10).WithDefault(3),
	})
}

var (
	ipSchema   = newSchema("BACnet/IP", TransportIP)
	mstpSchema = newSchema("BACnet MS/TP", TransportMSTP)
)

type Config struct {
	Transport      string `json:"transport"`
	DeviceInstance uint32 `json:"deviceInstance"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	SerialPort     string `json:"serialPort"`
	MACAddress     *int   `json:"macAddress"`
	BaudRate       int    `json:"baudRate"`
	APDUTimeout    int    `json:"apduTimeout"`
	WritePriority  uint8  `json:"writePriority"`
	Retries        int    `json:"retries"`
}

func (c *Config) address() string {
	if c.Transport == TransportMSTP {
		return c.SerialPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// endpoint for BACnet/IP is a UDP socket. MS/TP needs a token passing master node, which is
// reached through an injected Dialer that carries bare NPDUs.
func (c *Config) endpoint(p constant.Protocol) transport.Endpoint {
	ep := transport.Endpoint{
		Protocol:        p,
		Network:         transport.NetworkFieldbus,
		Address:         c.address(),
		ResponseTimeout: time.Duration(c.APDUTimeout) * time.Millisecond,
	}
	if c.Transport == TransportIP {
		ep.Network = transport.NetworkUDP
		ep.Accept = accept
	}
	return ep
}

// accept drops datagrams that do not answer req, such as I-Am broadcasts or late replies.
func accept(req, resp []byte) bool {
	q, err := codec.StripBVLC(req)
	if err != nil {
		return false
	}
	r, err := codec.StripBVLC(resp)
	if err != nil {
		return false
	}
	qa, err := codec.APDU(q)
	if err != nil {
		return false
	}
	ra, err := codec.APDU(r)
	if err != nil || len(ra) == 0 || ra[0]&0xF0 == 0x00 || ra[0]&0xF0 == 0x10 {
		// confirmed and unconfirmed requests from the peer
		return false
	}
	qi, ok := codec.InvokeID(qa)
	if !ok {
		return false
	}
	ri, ok := codec.InvokeID(ra)
	return ok && qi == ri
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	var c Config
	if err := adapter.Decode(cfg, &c); err != nil {
		return nil
	}
	var allErrs field.ErrorList
	switch c.Transport {
	case TransportIP:
		if c.Host == "" {
			allErrs = append(allErrs, field.Required(field.NewPath("host"), "required for BACnet/IP"))
		} else {
			allErrs = append(allErrs, adapter.ValidateHost(field.NewPath("host"), c.Host)...)
		}
	case TransportMSTP:
		if c.SerialPort == "" {
			allErrs = append(allErrs, field.Required(field.NewPath("serialPort"), "required for MS/TP"))
		}
		if c.MACAddress == nil {
			allErrs = append(allErrs, field.Required(field.NewPath("macAddress"), "required for MS/TP"))
		}
	}
	return allErrs
}
