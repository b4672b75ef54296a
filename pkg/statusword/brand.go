package statusword

import (
	"vfdgateway/pkg/runtime/constant"
)

type Command string

const (
	CommandStart      Command = "start"
	CommandStop       Command = "stop"
	CommandReset      Command = "reset"
	CommandForward    Command = "forward"
	CommandReverse    Command = "reverse"
	CommandQuickStop  Command = "quick_stop"
	CommandCoastStop  Command = "coast_stop"
	CommandSetSpeed   Command = "set_frequency"
	CommandWriteParam Command = "write_parameter"
)

var StringToCommand = map[string]Command{
	"start":           CommandStart,
	"stop":            CommandStop,
	"reset":           CommandReset,
	"forward":         CommandForward,
	"reverse":         CommandReverse,
	"quick_stop":      CommandQuickStop,
	"coast_stop":      CommandCoastStop,
	"set_frequency":   CommandSetSpeed,
	"write_parameter": CommandWriteParam,
}

// Profile is the bit layout a brand uses on its status and control words.
type Profile struct {
	Status  BitTable
	Control ControlTable
	Presets map[Command]map[string]bool
}

var cia402Presets = map[Command]map[string]bool{
	CommandStart:     {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true},
	CommandStop:      {"enableVoltage": true, "quickStop": true},
	CommandReset:     {"faultReset": true},
	CommandForward:   {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true},
	CommandReverse:   {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true, "reverse": true},
	CommandQuickStop: {"enableVoltage": true},
	CommandCoastStop: {},
}

// PROFIdrive telegram 1 layout shared by the Siemens, ABB and Danfoss fieldbus profiles.
var profidriveStatus = BitTable{
	Bits: map[uint8]string{
		0:  "readyToSwitchOn",
		1:  "readyToOperate",
		2:  "operationEnabled",
		3:  "fault",
		4:  "noCoastStop",
		5:  "noQuickStop",
		6:  "switchOnInhibited",
		7:  "warning",
		8:  "speedAtSetpoint",
		9:  "remote",
		10: "frequencyReached",
		11: "currentLimit",
		13: "motorOverTemperature",
	},
	DirectionBit: 14,
}

var profidriveControl = ControlTable{
	"switchOn":        0x0001,
	"enableVoltage":   0x0002,
	"quickStop":       0x0004,
	"enableOperation": 0x0008,
	"rampEnable":      0x0010,
	"rampUnfreeze":    0x0020,
	"setpointEnable":  0x0040,
	"faultReset":      0x0080,
	"jog1":            0x0100,
	"jog2":            0x0200,
	"remote":          0x0400,
	"reverse":         0x0800,
}

var profidrivePresets = map[Command]map[string]bool{
	CommandStart:     {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true, "rampEnable": true, "rampUnfreeze": true, "setpointEnable": true, "remote": true},
	CommandStop:      {"enableVoltage": true, "quickStop": true, "remote": true},
	CommandReset:     {"faultReset": true, "remote": true},
	CommandForward:   {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true, "rampEnable": true, "rampUnfreeze": true, "setpointEnable": true, "remote": true},
	CommandReverse:   {"switchOn": true, "enableVoltage": true, "quickStop": true, "enableOperation": true, "rampEnable": true, "rampUnfreeze": true, "setpointEnable": true, "remote": true, "reverse": true},
	CommandQuickStop: {"enableVoltage": true, "remote": true},
	CommandCoastStop: {"remote": true},
}

// Run/forward/reverse command register used by Yaskawa, Mitsubishi and Delta drives.
var runCommandStatus = BitTable{
	Bits: map[uint8]string{
		0: "running",
		2: "ready",
		3: "fault",
		4: "warning",
		5: "remote",
		6: "speedAgree",
		7: "undervoltage",
	},
	DirectionBit: 1,
}

var runCommandControl = ControlTable{
	"run":        0x0001,
	"reverse":    0x0002,
	"external":   0x0004,
	"faultReset": 0x0008,
	"jog":        0x0010,
	"quickStop":  0x0020,
}

var runCommandPresets = map[Command]map[string]bool{
	CommandStart:     {"run": true},
	CommandStop:      {},
	CommandReset:     {"faultReset": true},
	CommandForward:   {"run": true},
	CommandReverse:   {"run": true, "reverse": true},
	CommandQuickStop: {"quickStop": true},
	CommandCoastStop: {},
}

var DefaultProfile = Profile{Status: DefaultStatusBits, Control: DefaultControlBits, Presets: cia402Presets}

var profiles = map[constant.Brand]Profile{
	constant.ABB:          {Status: profidriveStatus, Control: profidriveControl, Presets: profidrivePresets},
	constant.Siemens:      {Status: profidriveStatus, Control: profidriveControl, Presets: profidrivePresets},
	constant.Danfoss:      {Status: profidriveStatus, Control: profidriveControl, Presets: profidrivePresets},
	constant.Schneider:    DefaultProfile,
	constant.AllenBradley: DefaultProfile,
	constant.Yaskawa:      {Status: runCommandStatus, Control: runCommandControl, Presets: runCommandPresets},
	constant.Mitsubishi:   {Status: runCommandStatus, Control: runCommandControl, Presets: runCommandPresets},
	constant.Delta:        {Status: runCommandStatus, Control: runCommandControl, Presets: runCommandPresets},
}

// ProfileFor returns the brand's bit layout, falling back to CiA402.
func ProfileFor(brand constant.Brand) Profile {
	if p, ok := profiles[brand]; ok {
		return p
	}
	return DefaultProfile
}

// CommandWord builds the control word for cmd. ok is false when the brand has no preset for it.
func (p Profile) CommandWord(cmd Command) (uint16, bool) {
	bits, ok := p.Presets[cmd]
	if !ok {
		return 0, false
	}
	return p.Control.Build(bits), true
}
