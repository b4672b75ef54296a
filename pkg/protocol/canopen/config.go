package canopen

import (
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/transport"
)

// maxInterfaceName is IFNAMSIZ without the terminating NUL.
const maxInterfaceName = 15

var schema = adapter.NewSchema("CANopen", []string{"interface", "nodeId"}, map[string]*adapter.Property{
	"interface":   adapter.String("CAN interface").Describe("SocketCAN interface, for example can0"),
	"nodeId":      adapter.Integer("Node ID").Between(1, 127),
	"bitrate":     adapter.Integer("Bit rate").OneOf(10000, 20000, 50000, 125000, 250000, 500000, 800000, 1000000).WithDefault(500000),
	"sdoTimeout":  adapter.Integer("SDO timeout (ms)").Between(10, 10000).WithDefault(1000),
	"heartbeatMs": adapter.Integer("Heartbeat producer time (ms)").Between(0, 65535).WithDefault(1000),
	"retries":     adapter.Integer("Retries").Between(0, 10).WithDefault(3),
})

type Config struct {
	Interface   string `json:"interface"`
	NodeID      uint8  `json:"nodeId"`
	Bitrate     int    `json:"bitrate"`
	SDOTimeout  int    `json:"sdoTimeout"`
	HeartbeatMs int    `json:"heartbeatMs"`
	Retries     int    `json:"retries"`
}

func (c *Config) endpoint() transport.Endpoint {
	sdo := time.Duration(c.SDOTimeout) * time.Millisecond
	return transport.Endpoint{
		Protocol: constant.CANopen,
		Network:  transport.NetworkCAN,
		Address:  c.Interface,
		// connecting waits for the first heartbeat after NMT start
		DialTimeout:     sdo + 2*time.Duration(c.HeartbeatMs)*time.Millisecond,
		ResponseTimeout: sdo,
		Accept:          c.accept,
	}
}

// accept keeps the frames node sends in answer to req and drops the rest of the bus traffic.
func (c *Config) accept(req, resp []byte) bool {
	q, err := transport.UnmarshalCANFrame(req)
	if err != nil {
		return false
	}
	r, err := transport.UnmarshalCANFrame(resp)
	if err != nil {
		return false
	}
	if q.ID == codec.NMTCommandID {
		return r.ID == codec.HeartbeatBase+uint32(c.NodeID)
	}
	if r.ID != codec.SDOResponseBase+uint32(c.NodeID) {
		return false
	}
	qs, err := codec.ParseSDO(q.Data)
	if err != nil {
		return false
	}
	rs, err := codec.ParseSDO(r.Data)
	return err == nil && rs.Index == qs.Index && rs.SubIndex == qs.SubIndex
}

func (d *driver) ValidateConfig(cfg runtime.Configuration) field.ErrorList {
	name, ok := cfg["interface"].(string)
	if ok && len(name) > maxInterfaceName {
		return field.ErrorList{field.TooLong(field.NewPath("interface"), name, maxInterfaceName)}
	}
	return nil
}
