package constant

import (
	"encoding/json"
	"fmt"
)

type Protocol int8

const (
	ModbusRTU Protocol = iota
	ModbusTCP
	ProfibusDP
	Profinet
	EthernetIP
	CANopen
	BACnetIP
	BACnetMSTP
)

var ProtocolToString = map[Protocol]string{
	ModbusRTU:  "modbus_rtu",
	ModbusTCP:  "modbus_tcp",
	ProfibusDP: "profibus_dp",
	Profinet:   "profinet",
	EthernetIP: "ethernet_ip",
	CANopen:    "canopen",
	BACnetIP:   "bacnet_ip",
	BACnetMSTP: "bacnet_mstp",
}

var StringToProtocol = map[string]Protocol{
	"modbus_rtu":  ModbusRTU,
	"modbus_tcp":  ModbusTCP,
	"profibus_dp": ProfibusDP,
	"profinet":    Profinet,
	"ethernet_ip": EthernetIP,
	"canopen":     CANopen,
	"bacnet_ip":   BACnetIP,
	"bacnet_mstp": BACnetMSTP,
}

// Protocols lists every protocol in declaration order.
func Protocols() []Protocol {
	return []Protocol{ModbusRTU, ModbusTCP, ProfibusDP, Profinet, EthernetIP, CANopen, BACnetIP, BACnetMSTP}
}

func ParseProtocol(s string) (Protocol, error) {
	p, ok := StringToProtocol[s]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProtocol, s)
	}
	return p, nil
}

func (p Protocol) String() string {
	if s, ok := ProtocolToString[p]; ok {
		return s
	}
	return fmt.Sprintf("protocol(%d)", p)
}

func (p Protocol) MarshalJSON() ([]byte, error) {
	if s, ok := ProtocolToString[p]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown protocol %d", p)
}

func (p *Protocol) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseProtocol(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
