package canopen

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
	"vfdgateway/pkg/transport"
)

func setup(t *testing.T) (*Adapter, *simulator.Drive, *adapter.ConnectionHandle) {
	t.Helper()
	bus := simulator.NewBus()
	drive := simulator.NewDrive(5)
	bus.Attach("can0", drive)
	a := New(bus)
	h, err := a.Connect(context.Background(), runtime.Configuration{"interface": "can0", "nodeId": 5, "sdoTimeout": 50, "heartbeatMs": 10})
	require.NoError(t, err)
	return a, drive, h
}

func TestIndex(t *testing.T) {
	assert.Equal(t, uint16(0x6041), Index(0x41, constant.FunctionCodeReadHoldingRegisters))
	assert.Equal(t, uint16(0x6044), Index(0x144, constant.FunctionCodeReadHoldingRegisters))
	assert.Equal(t, uint16(0x2001), Index(0x2001, constant.FunctionCodeParameter))
	assert.Equal(t, uint16(0x6010), Index(0x10, constant.FunctionCodeParameter))
}

func TestReadParameters(t *testing.T) {
	a, drive, h := setup(t)
	assert.Equal(t, "operational", h.Metadata["nmtState"])
	drive.Load(map[uint32]uint16{0x6041: 0x0637, 0x6044: 0xFF38, 0x2001: 480})

	mappings := []*runtime.RegisterMapping{
		{ParameterName: "statusword", RegisterAddress: 0x41, DataType: constant.STATUS_WORD},
		{ParameterName: "vl_velocity_actual", RegisterAddress: 0x44, DataType: constant.INT16},
		{ParameterName: "dc_link", RegisterAddress: 0x2001, FunctionCode: constant.FunctionCodeParameter, DataType: constant.UINT16, ScalingFactor: 0.1},
		{ParameterName: "absent", RegisterAddress: 0x50, DataType: constant.UINT16},
	}
	result, err := a.ReadParameters(context.Background(), h.ID, mappings)
	require.NoError(t, err)
	assert.Equal(t, float64(0x0637), result.Parameters["statusword"])
	assert.Equal(t, float64(-200), result.Parameters["vl_velocity_actual"])
	assert.InDelta(t, 48.0, result.Parameters["dc_link"], 1e-9)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "object does not exist")
}

func TestAbortIsNotRetried(t *testing.T) {
	a, drive, h := setup(t)
	before := drive.Requests()
	_, err := a.ReadRegister(context.Background(), h.ID, 0x50, 1, constant.FunctionCodeReadHoldingRegisters)
	var abort *codec.SDOAbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, uint16(0x6050), abort.Index)
	assert.Equal(t, int64(1), drive.Requests()-before)
}

func TestWrite(t *testing.T) {
	a, drive, h := setup(t)
	res := a.WriteControlWord(context.Background(), h.ID, 0x000F, 0x40)
	require.True(t, res.Success, res.Error)
	v, ok := drive.Get(0x6040)
	require.True(t, ok)
	assert.Equal(t, uint16(0x000F), v)

	res = a.WriteSpeedReference(context.Background(), h.ID, -300, 0x42, 1)
	require.True(t, res.Success, res.Error)
	v, _ = drive.Get(0x6042)
	assert.Equal(t, uint16(0xFED4), v)
}

func TestNMTRestartedAfterReset(t *testing.T) {
	a, drive, h := setup(t)
	drive.Set(0x6041, 0x0237)
	drive.Break()

	buf, err := a.ReadRegister(context.Background(), h.ID, 0x41, 1, constant.FunctionCodeReadHoldingRegisters)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x37}, buf)
}

func TestAccept(t *testing.T) {
	c := Config{NodeID: 5}
	sdo := transport.CANFrame{ID: 0x605, Data: codec.UploadRequest(0x6041, 0)}.Marshal()
	ok := transport.CANFrame{ID: 0x585, Data: codec.UploadResponse(0x6041, 0, []byte{1, 2})}.Marshal()
	other := transport.CANFrame{ID: 0x586, Data: codec.UploadResponse(0x6041, 0, []byte{1, 2})}.Marshal()
	wrongIndex := transport.CANFrame{ID: 0x585, Data: codec.UploadResponse(0x6042, 0, []byte{1, 2})}.Marshal()
	assert.True(t, c.accept(sdo, ok))
	assert.False(t, c.accept(sdo, other))
	assert.False(t, c.accept(sdo, wrongIndex))

	nmt := transport.CANFrame{ID: 0, Data: codec.NMTStart(5)}.Marshal()
	hb := transport.CANFrame{ID: 0x705, Data: codec.Heartbeat(codec.NMTStateOperable)}.Marshal()
	assert.True(t, c.accept(nmt, hb))
	assert.False(t, c.accept(nmt, ok))
}

func TestConfigurationAndProbe(t *testing.T) {
	bus := simulator.NewBus()
	drive := simulator.NewDrive(5)
	drive.Set(0x6041, 0x0637)
	bus.Attach("can0", drive)
	a := New(bus)

	v := a.ValidateConfiguration(runtime.Configuration{"interface": "a-very-long-can-interface", "nodeId": 128, "bitrate": 300000})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 3)

	res := a.TestConnection(context.Background(), runtime.Configuration{"interface": "can0", "nodeId": 5})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []uint16{0x0637}, res.SampleData)

	res = a.TestConnection(context.Background(), runtime.Configuration{"interface": "can0", "nodeId": 6, "sdoTimeout": 20, "heartbeatMs": 10, "retries": 0})
	assert.False(t, res.Success)
}
