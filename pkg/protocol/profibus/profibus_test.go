package profibus

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

func setup(t *testing.T, ppo int) (*Adapter, *simulator.Drive, *adapter.ConnectionHandle) {
	t.Helper()
	bus := simulator.NewBus()
	drive := simulator.NewDrive(3)
	drive.PPO = ppo
	bus.Attach("dp0", drive)
	a := New(bus)
	h, err := a.Connect(context.Background(), runtime.Configuration{"interface": "dp0", "stationAddress": 3, "ppoType": ppo, "responseTimeout": 50})
	require.NoError(t, err)
	return a, drive, h
}

func TestCyclicAndParameterReads(t *testing.T) {
	a, drive, h := setup(t, 1)
	drive.SetInput(0, 0x8637)
	drive.SetInput(1, 0x2000)
	drive.Set(1082, 1500)

	mappings := []*runtime.RegisterMapping{
		{ParameterName: "status_word", RegisterAddress: 100, DataType: constant.STATUS_WORD},
		{ParameterName: "speed_actual", RegisterAddress: 101, DataType: constant.INT16, ScalingFactor: 0.01},
		{ParameterName: "max_speed", RegisterAddress: 1082, FunctionCode: constant.FunctionCodeParameter, DataType: constant.UINT16},
		{ParameterName: "beyond_ppo", RegisterAddress: 7, DataType: constant.UINT16},
	}
	result, err := a.ReadParameters(context.Background(), h.ID, mappings)
	require.NoError(t, err)
	assert.Equal(t, float64(0x8637), result.Parameters["status_word"])
	assert.Equal(t, runtime.DirectionReverse, result.Direction)
	assert.InDelta(t, 81.92, result.Parameters["speed_actual"], 1e-9)
	assert.Equal(t, float64(1500), result.Parameters["max_speed"])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "beyond_ppo")
}

func TestWrites(t *testing.T) {
	a, drive, h := setup(t, 2)

	res := a.WriteControlWord(context.Background(), h.ID, 0x047F, 0)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, uint16(0x047F), drive.Output(0))

	res = a.WriteSpeedReference(context.Background(), h.ID, 25, 1, 0.01)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, uint16(2500), drive.Output(1))
	assert.Equal(t, uint16(0x047F), drive.Output(0), "output image is kept between exchanges")

	res = a.WriteRegister(context.Background(), h.ID, 2302, 150)
	require.True(t, res.Success, res.Error)
	v, ok := drive.Get(2302)
	require.True(t, ok)
	assert.Equal(t, uint16(150), v)
}

func TestParameterErrors(t *testing.T) {
	a, _, h := setup(t, 1)
	_, err := a.ReadRegister(context.Background(), h.ID, 999, 1, constant.FunctionCodeParameter)
	var pe *codec.PKWError
	assert.ErrorAs(t, err, &pe)

	a, _, h = setup(t, 3)
	_, err = a.ReadRegister(context.Background(), h.ID, 999, 1, constant.FunctionCodeParameter)
	assert.ErrorIs(t, err, codec.ErrNoPKW)

	_, err = a.ReadRegister(context.Background(), h.ID, 1, 2, constant.FunctionCodeReadHoldingRegisters)
	assert.ErrorIs(t, err, ErrOffset)
}

func TestConfiguration(t *testing.T) {
	a := New(transport.DefaultDialer)
	v := a.ValidateConfiguration(runtime.Configuration{"interface": "dp0", "stationAddress": 1, "masterAddress": 1, "baudRate": 100})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 2)

	_, err := a.Connect(context.Background(), runtime.Configuration{"interface": "dp0", "stationAddress": 3})
	var ce *adapter.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, transport.ErrNoTransport)
}

func TestProbe(t *testing.T) {
	bus := simulator.NewBus()
	drive := simulator.NewDrive(3)
	drive.SetInput(0, 0x0637)
	bus.Attach("dp0", drive)

	res := New(bus).TestConnection(context.Background(), runtime.Configuration{"interface": "dp0", "stationAddress": 3})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []uint16{0x0637, 0}, res.SampleData)

	res = New(bus).TestConnection(context.Background(), runtime.Configuration{"interface": "dp0", "stationAddress": 4, "responseTimeout": 20, "retries": 0})
	assert.False(t, res.Success)
}
