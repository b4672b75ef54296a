// Package simulator answers protocol frames from an in-memory drive so adapters can run end to
// end without hardware.
package simulator

import (
	"sync"

	"go.uber.org/atomic"
)

const processImageWords = 10

// Drive is the device side of every simulated link: addressable registers (holding registers,
// SDO objects, BACnet objects, drive parameters) and the cyclic process images.
type Drive struct {
	// ID is the Modbus slave/unit, CANopen node, PROFIBUS station or MS/TP MAC of the drive.
	ID             uint8
	PPO            int
	InputAssembly  uint16
	OutputAssembly uint16
	// ZeroFill answers reads of unknown registers with 0 instead of an exception.
	ZeroFill bool
	// Promiscuous answers whatever slave, unit, station or node id a request is addressed to.
	Promiscuous bool

	mux       sync.Mutex
	registers map[uint32]uint16
	inputs    []uint16
	outputs   []uint16
	drop      int
	broken    bool

	requests atomic.Int64
}

func NewDrive(id uint8) *Drive {
	return &Drive{
		ID:             id,
		PPO:            1,
		InputAssembly:  100,
		OutputAssembly: 150,
		registers:      make(map[uint32]uint16),
		inputs:         make([]uint16, processImageWords),
		outputs:        make([]uint16, processImageWords),
	}
}

func (d *Drive) answers(id uint8) bool {
	return d.Promiscuous || id == d.ID
}

func (d *Drive) Set(address uint32, value uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.registers[address] = value
}

func (d *Drive) Load(values map[uint32]uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	for k, v := range values {
		d.registers[k] = v
	}
}

func (d *Drive) Get(address uint32) (uint16, bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.get(address)
}

func (d *Drive) get(address uint32) (uint16, bool) {
	v, ok := d.registers[address]
	if !ok && d.ZeroFill {
		return 0, true
	}
	return v, ok
}

// getRange returns count registers from address, or false when any is unknown.
func (d *Drive) getRange(address uint32, count int) ([]uint16, bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	words := make([]uint16, count)
	for i := range words {
		v, ok := d.get(address + uint32(i))
		if !ok {
			return nil, false
		}
		words[i] = v
	}
	return words, true
}

// SetInput sets word i of the cyclic image the drive sends.
func (d *Drive) SetInput(i int, v uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if i < len(d.inputs) {
		d.inputs[i] = v
	}
}

// Output is word i of the cyclic image last received from the controller.
func (d *Drive) Output(i int) uint16 {
	d.mux.Lock()
	defer d.mux.Unlock()
	if i < len(d.outputs) {
		return d.outputs[i]
	}
	return 0
}

func (d *Drive) inputImage(words int) []uint16 {
	d.mux.Lock()
	defer d.mux.Unlock()
	img := make([]uint16, words)
	copy(img, d.inputs)
	return img
}

func (d *Drive) setOutputs(words []uint16) {
	d.mux.Lock()
	defer d.mux.Unlock()
	copy(d.outputs, words)
}

func (d *Drive) outputImage() []uint16 {
	d.mux.Lock()
	defer d.mux.Unlock()
	return append([]uint16(nil), d.outputs...)
}

// Requests counts the frames the drive has received.
func (d *Drive) Requests() int64 {
	return d.requests.Load()
}

// Drop leaves the next n requests unanswered.
func (d *Drive) Drop(n int) {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.drop = n
}

// Break resets the link on the next request.
func (d *Drive) Break() {
	d.mux.Lock()
	defer d.mux.Unlock()
	d.broken = true
}

func (d *Drive) fault() (drop, broken bool) {
	d.mux.Lock()
	defer d.mux.Unlock()
	if d.broken {
		d.broken = false
		return false, true
	}
	if d.drop > 0 {
		d.drop--
		return true, false
	}
	return false, false
}
