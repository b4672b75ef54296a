package device

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/apis"
	"vfdgateway/pkg/apis/response"
	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/gateway"
	"vfdgateway/pkg/generic"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/simulator"
	"vfdgateway/pkg/storage"
)

type recorder struct {
	mux      sync.Mutex
	readings []*runtime.Reading
}

func (r *recorder) Publish(_ *runtime.Device, reading *runtime.Reading) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.readings = append(r.readings, reading)
	return nil
}

func (r *recorder) len() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.readings)
}

type harness struct {
	root      string
	bus       *simulator.Bus
	drive     *simulator.Drive
	publisher *recorder
	mgr       *Manager
	stop      chan struct{}
}

func newHarness(t *testing.T, root string) *harness {
	t.Helper()
	bus := simulator.NewBus()
	drive := simulator.NewDrive(1)
	drive.ZeroFill = true
	drive.Load(map[uint32]uint16{4: 2500})
	bus.Attach("10.0.0.1:502", drive)

	store, err := generic.NewStore(root, storage.StoreGroupToString[storage.StoreGroupDevice], storage.Devices)
	require.NoError(t, err)
	readings, err := generic.NewReadingStore(root)
	require.NoError(t, err)
	adapters := generic.NewAdapters(bus)
	pool := connection.NewPool(adapters)

	h := &harness{root: root, bus: bus, drive: drive, publisher: &recorder{}, stop: make(chan struct{})}
	meta := &gateway.GatewayMeta{ObjectMeta: runtime.ObjectMeta{ID: "gw1"}}
	h.mgr = NewManager(store, readings, adapters, pool, meta, h.stop,
		WithPublisher(h.publisher),
		WithPollInterval(20*time.Millisecond),
		WithHeartBeatInterval(20*time.Millisecond),
		WithRetention(24*time.Hour),
	)
	h.mgr.Init()
	return h
}

func (h *harness) close() {
	_ = h.mgr.Shutdown(context.Background())
	close(h.stop)
}

func abbDevice(host string) *runtime.Device {
	return &runtime.Device{
		ObjectMeta:    runtime.ObjectMeta{Name: "conveyor"},
		Brand:         constant.ABB,
		Protocol:      constant.ModbusTCP,
		Configuration: runtime.Configuration{"host": host, "responseTimeout": 50, "retries": 0},
	}
}

func collectStatus(m *Manager, id string) func() bool {
	return func() bool {
		d, err := m.GetDeviceById(id)
		return err == nil && d.CollectStatus == runtime.CollectStatusToString[runtime.Collecting]
	}
}

func TestDeviceLifecycle(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()

	created, err := h.mgr.CreateDevice(abbDevice("10.0.0.1"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Version)
	assert.Equal(t, "data/gw1/v1/"+created.ID, created.Topic)

	require.Eventually(t, collectStatus(h.mgr, created.ID), time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return h.publisher.len() > 0 }, time.Second, 10*time.Millisecond)

	readings, err := h.mgr.Readings(created.ID, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, readings)
	require.NotNil(t, readings[0].OutputFrequency)
	assert.InDelta(t, 25.0, *readings[0].OutputFrequency, 1e-9)

	d, err := h.mgr.GetDeviceById(created.ID)
	require.NoError(t, err)
	assert.Equal(t, runtime.ConnectionStatusConnected, d.ConnectionStatus)
	assert.NotNil(t, d.LastSeen)

	changed := abbDevice("10.0.0.1")
	changed.Name = "conveyor-2"
	_, err = h.mgr.UpdateDeviceById(created.ID, "stale", changed)
	assert.ErrorIs(t, err, apis.ErrMismatch)

	updated, err := h.mgr.UpdateDeviceById(created.ID, created.Version, changed)
	require.NoError(t, err)
	assert.Equal(t, "conveyor-2", updated.Name)
	assert.Equal(t, created.ID, updated.ID)
	assert.NotEqual(t, created.Version, updated.Version)

	list, err := h.mgr.ListDevices(&runtime.DeviceFilter{Name: "conveyor-2"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.mgr.DeleteDevice(created.ID, created.Version)
	assert.ErrorIs(t, err, apis.ErrMismatch)
	_, err = h.mgr.DeleteDevice(created.ID, updated.Version)
	require.NoError(t, err)
	_, err = h.mgr.GetDeviceById(created.ID)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateDeviceValidation(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()

	d := abbDevice("")
	d.Name = ""
	_, err := h.mgr.CreateDevice(d)
	require.Error(t, err)
	assert.True(t, response.IsResponseError(err))
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "configuration.host")

	list, _ := h.mgr.ListDevices(&runtime.DeviceFilter{})
	assert.Empty(t, list)
}

func TestUnreachableDeviceResumesOnHeartBeat(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()

	created, err := h.mgr.CreateDevice(abbDevice("10.0.0.7"))
	require.NoError(t, err)
	assert.Equal(t, runtime.CollectStatusToString[runtime.Unconnected], created.CollectStatus)
	assert.Equal(t, runtime.ConnectionStatusError, created.ConnectionStatus)

	late := simulator.NewDrive(1)
	late.ZeroFill = true
	h.bus.Attach("10.0.0.7:502", late)
	assert.Eventually(t, collectStatus(h.mgr, created.ID), time.Second, 10*time.Millisecond)
}

func TestSwitchDeviceStatus(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()

	created, err := h.mgr.CreateDevice(abbDevice("10.0.0.1"))
	require.NoError(t, err)
	require.Eventually(t, collectStatus(h.mgr, created.ID), time.Second, 10*time.Millisecond)

	require.NoError(t, h.mgr.SwitchDeviceStatus(created.ID, "stop"))
	assert.Eventually(t, func() bool {
		d, _ := h.mgr.GetDeviceById(created.ID)
		return d.CollectStatus == runtime.CollectStatusToString[runtime.Stopped]
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.mgr.SwitchDeviceStatus(created.ID, "start"))
	assert.Eventually(t, collectStatus(h.mgr, created.ID), time.Second, 10*time.Millisecond)

	err = h.mgr.SwitchDeviceStatus(created.ID, "pause")
	assert.True(t, response.IsResponseError(err))
	assert.ErrorIs(t, h.mgr.SwitchDeviceStatus("missing", "start"), os.ErrNotExist)
}

func TestInitReloadsDevices(t *testing.T) {
	root := t.TempDir()
	first := newHarness(t, root)
	created, err := first.mgr.CreateDevice(abbDevice("10.0.0.1"))
	require.NoError(t, err)
	first.close()

	second := newHarness(t, root)
	defer second.close()
	d, err := second.mgr.GetDeviceById(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Version, d.Version)
	assert.Eventually(t, collectStatus(second.mgr, created.ID), time.Second, 10*time.Millisecond)
}

func TestCatalog(t *testing.T) {
	h := newHarness(t, t.TempDir())
	defer h.close()

	protocols := h.mgr.Protocols()
	assert.Len(t, protocols, len(constant.Protocols()))
	assert.NotNil(t, h.mgr.ProtocolSchema(constant.ModbusTCP))

	brands := h.mgr.Brands()
	require.NotEmpty(t, brands)
	assert.Nil(t, brands[0].Mappings)
}

type token struct {
	done chan struct{}
	err  error
}

func (t *token) Wait() bool                       { return true }
func (t *token) WaitTimeout(_ time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}            { return t.done }
func (t *token) Error() error                     { return t.err }

type client struct {
	mqtt.Client
	topics   []string
	payloads [][]byte
	qos      []byte
}

func (c *client) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	c.payloads = append(c.payloads, payload.([]byte))
	done := make(chan struct{})
	close(done)
	return &token{done: done}
}

func TestMQTTPublisher(t *testing.T) {
	c := &client{}
	p := NewMQTTPublisher(c, "gw1")

	rr := runtime.NewReadResult()
	rr.Parameters["output_frequency"] = 50
	rr.Parameters["heatsink_fan_speed"] = 900
	rr.StatusBits["running"] = true
	rr.Direction = runtime.DirectionForward
	r := runtime.NewReading("r1", "d1", rr)

	require.NoError(t, p.Publish(&runtime.Device{ObjectMeta: runtime.ObjectMeta{ID: "d1"}}, r))
	require.NoError(t, p.Publish(&runtime.Device{ObjectMeta: runtime.ObjectMeta{ID: "d2"}, Topic: "plant/line1"}, r))
	assert.Equal(t, []string{"data/gw1/v1/d1", "plant/line1"}, c.topics)
	assert.Equal(t, []byte{1, 1}, c.qos)

	data := NewPublishData(r)
	require.Len(t, data.Payload.Data, 1)
	values := data.Payload.Data[0].Values
	require.Len(t, values, 4)
	assert.Equal(t, "heatsink_fan_speed", values[0].DataPointId)
	assert.Equal(t, "output_frequency", values[1].DataPointId)
	assert.Equal(t, runtime.PointData{DataPointId: "status.running", Value: true}, values[2])
	assert.Equal(t, runtime.PointData{DataPointId: "direction", Value: "forward"}, values[3])
}
