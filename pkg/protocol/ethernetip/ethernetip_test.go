package ethernetip

import (
	"context"
	"testing"

	"github.com/danomagnum/gologix"
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
	drive := simulator.NewDrive(1)
	bus.Attach("10.1.4.30:44818", drive)
	a := New(bus)
	h, err := a.Connect(context.Background(), runtime.Configuration{"host": "10.1.4.30", "responseTimeout": 50, "retries": 2})
	require.NoError(t, err)
	return a, drive, h
}

func TestAssemblyAndParameterReads(t *testing.T) {
	a, drive, h := setup(t)
	assert.Equal(t, "44818", h.Metadata["port"])
	drive.SetInput(0, 0x0637)
	drive.SetInput(1, 0x01F4)
	drive.Set(2001, 0xABCD)

	mappings := []*runtime.RegisterMapping{
		{ParameterName: "status_word", RegisterAddress: 0, DataType: constant.STATUS_WORD},
		{ParameterName: "output_frequency", RegisterAddress: 1, DataType: constant.UINT16, ScalingFactor: 0.1},
		{ParameterName: "motor_hours", RegisterAddress: 2001, FunctionCode: constant.FunctionCodeParameter, DataType: constant.UINT16},
		{ParameterName: "unknown", RegisterAddress: 2002, FunctionCode: constant.FunctionCodeParameter, DataType: constant.UINT16},
	}
	result, err := a.ReadParameters(context.Background(), h.ID, mappings)
	require.NoError(t, err)
	assert.Equal(t, float64(0x0637), result.Parameters["status_word"])
	assert.InDelta(t, 50.0, result.Parameters["output_frequency"], 1e-9)
	assert.Equal(t, float64(0xABCD), result.Parameters["motor_hours"])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unknown")

	before := drive.Requests()
	_, err = a.ReadRegister(context.Background(), h.ID, 2002, 1, constant.FunctionCodeParameter)
	var ce *codec.CIPError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(1), drive.Requests()-before, "cip errors are not retried")

	_, err = a.ReadRegister(context.Background(), h.ID, 9, 2, constant.FunctionCodeReadHoldingRegisters)
	assert.ErrorIs(t, err, ErrOffset)
}

func TestWrites(t *testing.T) {
	a, drive, h := setup(t)

	res := a.WriteControlWord(context.Background(), h.ID, 0x047F, 0)
	require.True(t, res.Success, res.Error)
	res = a.WriteSpeedReference(context.Background(), h.ID, 30, 1, 0.1)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, uint16(0x047F), drive.Output(0))
	assert.Equal(t, uint16(300), drive.Output(1))

	res = a.WriteRegister(context.Background(), h.ID, 2100, 7)
	require.True(t, res.Success, res.Error)
	v, ok := drive.Get(2100)
	require.True(t, ok)
	assert.Equal(t, uint16(7), v)

	res = a.WriteRegister(context.Background(), h.ID, 70000, 1)
	assert.False(t, res.Success)
}

func TestReconnectAfterReset(t *testing.T) {
	a, drive, h := setup(t)
	drive.SetInput(2, 99)
	drive.Break()

	buf, err := a.ReadRegister(context.Background(), h.ID, 2, 1, constant.FunctionCodeReadInputRegisters)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 99}, buf)

	drive.Drop(1)
	before := drive.Requests()
	buf, err = a.ReadRegister(context.Background(), h.ID, 2, 1, constant.FunctionCodeReadInputRegisters)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 99}, buf)
	assert.Equal(t, int64(2), drive.Requests()-before)

	drive.Drop(3)
	_, err = a.ReadRegister(context.Background(), h.ID, 2, 1, constant.FunctionCodeReadInputRegisters)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "retries exhausted")
}

// recorder is a CIP session that logs the requests the adapter issues.
type recorder struct {
	gets     []codec.Path
	services []gologix.CIPService
	sets     []codec.Path
	data     [][]byte
	connects int
}

func (r *recorder) Connect() error    { r.connects++; return nil }
func (r *recorder) Disconnect() error { return nil }

func (r *recorder) GetAttrSingle(cls gologix.CIPClass, inst gologix.CIPInstance, attr gologix.CIPAttribute) (*gologix.CIPItem, error) {
	r.gets = append(r.gets, codec.Path{Class: uint8(cls), Instance: uint32(inst), Attribute: uint8(attr)})
	// two header bytes ahead of the payload
	return &gologix.CIPItem{Data: []byte{0xFF, 0xFF, 0x34, 0x12, 0x02, 0x00}, Pos: 2}, nil
}

func (r *recorder) GenericCIPMessage(service gologix.CIPService, path, data []byte) (*gologix.CIPItem, error) {
	p, err := codec.ParsePath(path)
	if err != nil {
		return nil, err
	}
	r.services = append(r.services, service)
	r.sets = append(r.sets, p)
	r.data = append(r.data, data)
	return &gologix.CIPItem{}, nil
}

type recorderDialer struct {
	transport.Dialer
	client *recorder
}

func (d recorderDialer) DialCIP(transport.Endpoint) (transport.CIPClient, error) {
	return d.client, nil
}

func TestCIPRequests(t *testing.T) {
	rec := &recorder{}
	a := New(recorderDialer{client: rec})
	h, err := a.Connect(context.Background(), runtime.Configuration{"host": "10.1.4.40", "inputAssembly": 101, "outputAssembly": 151, "configAssembly": 152})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.connects)
	assert.Equal(t, []codec.Path{{Class: 0x04, Instance: 151, Attribute: 3}}, rec.gets, "output image seeded on open")

	buf, err := a.ReadRegister(context.Background(), h.ID, 1, 1, constant.FunctionCodeReadInputRegisters)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x02}, buf)
	assert.Equal(t, codec.Path{Class: 0x04, Instance: 101, Attribute: 3}, rec.gets[1])

	_, err = a.ReadRegister(context.Background(), h.ID, 300, 1, constant.FunctionCodeParameter)
	require.NoError(t, err)
	assert.Equal(t, codec.Path{Class: 0x0F, Instance: 300, Attribute: 1}, rec.gets[2])

	res := a.WriteRegister(context.Background(), h.ID, 1, 0x0102)
	require.True(t, res.Success, res.Error)
	res = a.WriteRegister(context.Background(), h.ID, 300, 5)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []gologix.CIPService{0x10, 0x10}, rec.services)
	assert.Equal(t, []codec.Path{{Class: 0x04, Instance: 151, Attribute: 3}, {Class: 0x0F, Instance: 300, Attribute: 1}}, rec.sets)
	assert.Equal(t, []byte{0x34, 0x12, 0x02, 0x01}, rec.data[0])
	assert.Equal(t, []byte{0x05, 0x00}, rec.data[1])

	require.NoError(t, a.Disconnect(context.Background(), h.ID))
}

func TestConfiguration(t *testing.T) {
	a := New(simulator.NewBus())
	v := a.ValidateConfiguration(runtime.Configuration{"host": "10.1.4.30", "inputAssembly": 150, "outputAssembly": 150, "rpi": 0})
	assert.False(t, v.Valid)
	assert.Len(t, v.Errors, 2)
	assert.Equal(t, 100, a.DefaultConfiguration()["inputAssembly"])
	assert.NotContains(t, a.DefaultConfiguration(), "port")
}

func TestProbe(t *testing.T) {
	bus := simulator.NewBus()
	drive := simulator.NewDrive(1)
	drive.SetInput(0, 0x0237)
	bus.Attach("10.1.4.31:44818", drive)

	res := New(bus).TestConnection(context.Background(), runtime.Configuration{"host": "10.1.4.31"})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.SampleData, 10)
	assert.Equal(t, uint16(0x0237), res.SampleData[0])

	res = New(bus).TestConnection(context.Background(), runtime.Configuration{"host": "10.1.4.32"})
	assert.False(t, res.Success)
}
