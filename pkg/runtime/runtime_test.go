package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfdgateway/pkg/runtime/constant"
)

func TestRegisterMappingDefaults(t *testing.T) {
	m := &RegisterMapping{ParameterName: "output_frequency", RegisterAddress: 3}
	assert.Equal(t, uint16(1), m.Count())
	assert.Equal(t, uint8(3), m.Code())
	assert.Equal(t, 1.0, m.Scale())
	assert.True(t, m.IsReadable())
	assert.False(t, m.IsWritable())
}

func TestRegisterMappingInRange(t *testing.T) {
	min, max := 0.0, 50.0
	m := &RegisterMapping{MinValue: &min, MaxValue: &max}
	assert.True(t, m.InRange(50))
	assert.False(t, m.InRange(50.1))
	assert.False(t, m.InRange(-1))
	assert.True(t, (&RegisterMapping{}).InRange(1e9))
}

func TestBatchContains(t *testing.T) {
	b := BatchReadRequest{StartAddress: 100, Count: 4, FunctionCode: 3}
	assert.True(t, b.Contains(&RegisterMapping{RegisterAddress: 102, RegisterCount: 2}))
	assert.False(t, b.Contains(&RegisterMapping{RegisterAddress: 103, RegisterCount: 2}))
	assert.False(t, b.Contains(&RegisterMapping{RegisterAddress: 100, FunctionCode: 4}))
}

func TestNewReadingSplitsWellKnownParameters(t *testing.T) {
	rr := NewReadResult()
	rr.Parameters["output_frequency"] = 50
	rr.Parameters["heatsink_fan_speed"] = 1200

	r := NewReading("r1", "d1", rr)
	require.NotNil(t, r.OutputFrequency)
	assert.Equal(t, 50.0, *r.OutputFrequency)
	assert.Equal(t, map[string]float64{"heatsink_fan_speed": 1200}, r.CustomParameters)
	assert.Equal(t, map[string]float64{"output_frequency": 50, "heatsink_fan_speed": 1200}, r.Values())
}

func TestParseTypeFilter(t *testing.T) {
	devices := []*Device{
		{ObjectMeta: ObjectMeta{ID: "1", Name: "pump-1"}, Brand: constant.ABB, Protocol: constant.ModbusTCP},
		{ObjectMeta: ObjectMeta{ID: "2", Name: "fan-1"}, Brand: constant.Siemens, Protocol: constant.Profinet},
		{ObjectMeta: ObjectMeta{ID: "3", Name: "pump-2"}, Brand: constant.Siemens, Protocol: constant.ModbusRTU},
	}

	match := func(f *DeviceFilter) []string {
		var ids []string
		predicates := ParseTypeFilter(f)
		for _, d := range devices {
			ok := true
			for _, p := range predicates {
				if !p(d) {
					ok = false
					break
				}
			}
			if ok {
				ids = append(ids, d.ID)
			}
		}
		return ids
	}

	assert.Equal(t, []string{"2", "3"}, match(&DeviceFilter{Brand: "siemens"}))
	assert.Equal(t, []string{"3"}, match(&DeviceFilter{Brand: "siemens", Protocol: "modbus_rtu"}))
	assert.Equal(t, []string{"1", "3"}, match(&DeviceFilter{Name: map[string]interface{}{"StartsWith": "pump"}}))
	assert.Equal(t, []string{"2"}, match(&DeviceFilter{Name: "fan-1"}))
}

func TestDeviceSorterInsert(t *testing.T) {
	now := time.Now()
	sorter := ByDevice(func(d1, d2 *Device) bool { return d1.GetModTime().Before(d2.GetModTime()) })
	var ds []*Device
	ds = sorter.Insert(ds, &Device{ObjectMeta: ObjectMeta{ID: "old", ModTime: now.Add(-time.Hour)}})
	ds = sorter.Insert(ds, &Device{ObjectMeta: ObjectMeta{ID: "new", ModTime: now}})
	require.Len(t, ds, 2)
	assert.Equal(t, "new", ds[0].ID)
}

func TestDeviceDeepCopy(t *testing.T) {
	d := &Device{Configuration: Configuration{"host": "10.0.0.1", "port": 502}}
	c := d.DeepCopy()
	c.Configuration["host"] = "10.0.0.2"
	assert.Equal(t, "10.0.0.1", d.Configuration["host"])
}

func TestValidateDevice(t *testing.T) {
	errs := ValidateDevice(&Device{PollIntervalMs: -1})
	assert.Len(t, errs, 3)
}
