// Package statusword translates 16-bit drive status words into named flags and builds control
// words from named command bits.
package statusword

import (
	"sort"

	"vfdgateway/pkg/runtime"
)

// BitTable maps status word bit positions to flag names. DirectionBit set means reverse.
type BitTable struct {
	Bits         map[uint8]string
	DirectionBit uint8
}

// ControlTable maps command bit names to their masks.
type ControlTable map[string]uint16

// CiA402 layout, used when a brand does not override it.
var DefaultStatusBits = BitTable{
	Bits: map[uint8]string{
		0:  "readyToSwitchOn",
		1:  "switchedOn",
		2:  "operationEnabled",
		3:  "fault",
		4:  "voltageEnabled",
		5:  "quickStop",
		6:  "switchOnDisabled",
		7:  "warning",
		9:  "remote",
		10: "targetReached",
		11: "internalLimitActive",
	},
	DirectionBit: 15,
}

var DefaultControlBits = ControlTable{
	"switchOn":        0x0001,
	"enableVoltage":   0x0002,
	"quickStop":       0x0004,
	"enableOperation": 0x0008,
	"rampEnable":      0x0010,
	"rampUnfreeze":    0x0020,
	"setpointEnable":  0x0040,
	"faultReset":      0x0080,
	"halt":            0x0100,
	"remote":          0x0400,
	"reverse":         0x0800,
}

// ParseStatusWord returns every mapped flag of raw and the rotation direction. Unmapped bits are
// ignored.
func ParseStatusWord(raw uint16, table *BitTable) (map[string]bool, runtime.Direction) {
	if table == nil {
		table = &DefaultStatusBits
	}
	flags := make(map[string]bool, len(table.Bits))
	for bit, name := range table.Bits {
		if bit > 15 {
			continue
		}
		flags[name] = raw&(1<<bit) != 0
	}
	direction := runtime.DirectionForward
	if table.DirectionBit <= 15 && raw&(1<<table.DirectionBit) != 0 {
		direction = runtime.DirectionReverse
	}
	return flags, direction
}

// BuildControlWord ORs the masks of every true bit of the default table.
func BuildControlWord(bits map[string]bool) uint16 {
	return DefaultControlBits.Build(bits)
}

// Build ORs the masks of every true bit. Unknown and false names contribute nothing.
func (t ControlTable) Build(bits map[string]bool) uint16 {
	var word uint16
	for name, on := range bits {
		if on {
			word |= t[name]
		}
	}
	return word
}

// Names returns the command bit names in mask order.
func (t ControlTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if t[names[i]] == t[names[j]] {
			return names[i] < names[j]
		}
		return t[names[i]] < t[names[j]]
	})
	return names
}

// FromDefinitions builds a table from the bit definitions carried by a status word mapping. A
// definition named "direction" or "reverse" moves the direction bit.
func FromDefinitions(defs []runtime.BitDefinition) *BitTable {
	table := &BitTable{Bits: make(map[uint8]string, len(defs)), DirectionBit: DefaultStatusBits.DirectionBit}
	for _, def := range defs {
		switch def.Name {
		case "direction", "reverse":
			table.DirectionBit = def.Bit
		default:
			table.Bits[def.Bit] = def.Name
		}
	}
	return table
}

// Definitions lists the table as bit definitions in bit order, direction bit included.
func (t *BitTable) Definitions() []runtime.BitDefinition {
	defs := make([]runtime.BitDefinition, 0, len(t.Bits)+1)
	for bit, name := range t.Bits {
		defs = append(defs, runtime.BitDefinition{Bit: bit, Name: name})
	}
	defs = append(defs, runtime.BitDefinition{Bit: t.DirectionBit, Name: "direction", Description: "set when rotating in reverse"})
	sort.Slice(defs, func(i, j int) bool { return defs[i].Bit < defs[j].Bit })
	return defs
}
