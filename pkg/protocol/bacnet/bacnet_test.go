package bacnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/simulator"
)

func setupIP(t *testing.T) (*Adapter, *simulator.Drive, *adapter.ConnectionHandle) {
	t.Helper()
	bus := simulator.NewBus()
	drive := simulator.NewDrive(1)
	bus.Attach("192.168.10.7:47808", drive)
	a := New(constant.BACnetIP, bus)
	h, err := a.Connect(context.Background(), runtime.Configuration{"host": "192.168.10.7", "deviceInstance": 7001, "apduTimeout": 100})
	require.NoError(t, err)
	return a, drive, h
}

func TestObjectOf(t *testing.T) {
	oid, err := ObjectOf(2015)
	require.NoError(t, err)
	assert.Equal(t, codec.ObjectID{Type: codec.ObjectAnalogValue, Instance: 15}, oid)
	_, err = ObjectOf(1_100_000)
	assert.ErrorIs(t, err, ErrObjectType)
}

func TestWord(t *testing.T) {
	w, err := Word(44.6)
	require.NoError(t, err)
	assert.Equal(t, uint16(45), w)
	w, err = Word(-10)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFF6), w)
	_, err = Word(70000)
	assert.ErrorIs(t, err, ErrValueRange)
}

func TestReadParametersIP(t *testing.T) {
	a, drive, h := setupIP(t)
	assert.Equal(t, "ip", h.Metadata["transport"])
	assert.Equal(t, constant.BACnetIP, h.Protocol)
	drive.Load(map[uint32]uint16{2001: 1234, 3004: 1, 19002: 3})

	mappings := []*runtime.RegisterMapping{
		{ParameterName: "power", RegisterAddress: 2001, RegisterCount: 2, DataType: constant.FLOAT32},
		{ParameterName: "running", RegisterAddress: 3004, DataType: constant.UINT16},
		{ParameterName: "mode", RegisterAddress: 19002, DataType: constant.UINT16},
		{ParameterName: "absent", RegisterAddress: 2099, DataType: constant.UINT16},
	}
	result, err := a.ReadParameters(context.Background(), h.ID, mappings)
	require.NoError(t, err)
	assert.Equal(t, float64(1234), result.Parameters["power"])
	assert.Equal(t, float64(1), result.Parameters["running"])
	assert.Equal(t, float64(3), result.Parameters["mode"])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "absent")

	before := drive.Requests()
	_, err = a.ReadRegister(context.Background(), h.ID, 2099, 1, 0)
	var be *codec.BACnetError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, uint8(codec.ErrorCodeUnknownObject), be.Code)
	assert.Equal(t, int64(1), drive.Requests()-before)
}

func TestWriteIP(t *testing.T) {
	a, drive, h := setupIP(t)
	res := a.WriteRegister(context.Background(), h.ID, 4003, 1)
	require.True(t, res.Success, res.Error)
	v, ok := drive.Get(4003)
	require.True(t, ok)
	assert.Equal(t, uint16(1), v)

	res = a.WriteSpeedReference(context.Background(), h.ID, 42.5, 1001, 0.1)
	require.True(t, res.Success, res.Error)
	v, _ = drive.Get(1001)
	assert.Equal(t, uint16(425), v)
}

func TestMSTP(t *testing.T) {
	bus := simulator.NewBus()
	drive := simulator.NewDrive(1)
	drive.Set(0, 77)
	drive.Set(2003, 12)
	bus.Attach("/dev/ttyUSB1", drive)
	a := New(constant.BACnetMSTP, bus)

	h, err := a.Connect(context.Background(), runtime.Configuration{"serialPort": "/dev/ttyUSB1", "macAddress": 4, "deviceInstance": 12})
	require.NoError(t, err)
	assert.Equal(t, "mstp", h.Metadata["transport"])
	assert.Equal(t, "4", h.Metadata["macAddress"])
	buf, err := a.ReadRegister(context.Background(), h.ID, 2003, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 12}, buf)

	res := a.TestConnection(context.Background(), runtime.Configuration{"serialPort": "/dev/ttyUSB1", "macAddress": 4, "deviceInstance": 12})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []uint16{77}, res.SampleData)
}

func TestProbeWithoutAnalogInput(t *testing.T) {
	bus := simulator.NewBus()
	bus.Attach("192.168.10.8:47808", simulator.NewDrive(1))
	res := New(constant.BACnetIP, bus).TestConnection(context.Background(), runtime.Configuration{"host": "192.168.10.8", "deviceInstance": 1})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.SampleData)
}

func TestValidateConfiguration(t *testing.T) {
	ip := New(constant.BACnetIP, simulator.NewBus())
	assert.Equal(t, "ip", ip.DefaultConfiguration()["transport"])
	v := ip.ValidateConfiguration(runtime.Configuration{"deviceInstance": 5000000})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 2)

	mstp := New(constant.BACnetMSTP, simulator.NewBus())
	assert.Equal(t, "mstp", mstp.DefaultConfiguration()["transport"])
	v = mstp.ValidateConfiguration(runtime.Configuration{"deviceInstance": 1})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 2)
	assert.True(t, mstp.ValidateConfiguration(runtime.Configuration{"deviceInstance": 1, "serialPort": "/dev/ttyS0", "macAddress": 0}).Valid)
}

func TestAccept(t *testing.T) {
	req := codec.BVLC(codec.NPDU(codec.ReadPropertyAPDU(9, codec.ObjectID{Type: 2, Instance: 1}), true))
	ack := codec.BVLC(codec.NPDU(codec.ReadPropertyAck(9, codec.ObjectID{Type: 2, Instance: 1}, codec.PropertyPresentValue, codec.Value{Tag: 4, Float: 1}), false))
	late := codec.BVLC(codec.NPDU(codec.SimpleAck(8, codec.ServiceWriteProperty), false))
	assert.True(t, accept(req, ack))
	assert.False(t, accept(req, late))
	assert.False(t, accept(req, req))
}
