package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vfdgateway/pkg/runtime"
)

func mapping(address uint32, count uint16, fc uint8) *runtime.RegisterMapping {
	return &runtime.RegisterMapping{RegisterAddress: address, RegisterCount: count, FunctionCode: fc}
}

func TestGroupForBatchRead(t *testing.T) {
	cases := []struct {
		name     string
		mappings []*runtime.RegisterMapping
		maxGap   uint16
		maxBatch uint16
		want     []runtime.BatchReadRequest
	}{
		{
			name: "empty",
			want: []runtime.BatchReadRequest{},
		},
		{
			name:     "consecutive",
			mappings: []*runtime.RegisterMapping{mapping(102, 0, 0), mapping(100, 0, 0), mapping(101, 0, 0)},
			maxGap:   10,
			maxBatch: 125,
			want:     []runtime.BatchReadRequest{{StartAddress: 100, Count: 3, FunctionCode: 3}},
		},
		{
			name:     "gap too wide",
			mappings: []*runtime.RegisterMapping{mapping(100, 1, 3), mapping(200, 1, 3)},
			maxGap:   10,
			maxBatch: 125,
			want: []runtime.BatchReadRequest{
				{StartAddress: 100, Count: 1, FunctionCode: 3},
				{StartAddress: 200, Count: 1, FunctionCode: 3},
			},
		},
		{
			name:     "gap within limit",
			mappings: []*runtime.RegisterMapping{mapping(100, 2, 3), mapping(112, 2, 3)},
			maxGap:   10,
			maxBatch: 125,
			want:     []runtime.BatchReadRequest{{StartAddress: 100, Count: 14, FunctionCode: 3}},
		},
		{
			name:     "function codes never merge",
			mappings: []*runtime.RegisterMapping{mapping(100, 1, 3), mapping(101, 1, 4)},
			maxGap:   10,
			maxBatch: 125,
			want: []runtime.BatchReadRequest{
				{StartAddress: 100, Count: 1, FunctionCode: 3},
				{StartAddress: 101, Count: 1, FunctionCode: 4},
			},
		},
		{
			name:     "batch size ceiling",
			mappings: []*runtime.RegisterMapping{mapping(0, 2, 3), mapping(2, 2, 3), mapping(4, 2, 3)},
			maxGap:   10,
			maxBatch: 4,
			want: []runtime.BatchReadRequest{
				{StartAddress: 0, Count: 4, FunctionCode: 3},
				{StartAddress: 4, Count: 2, FunctionCode: 3},
			},
		},
		{
			name:     "overlap keeps the wider span",
			mappings: []*runtime.RegisterMapping{mapping(10, 4, 3), mapping(11, 1, 3), mapping(10, 1, 3)},
			maxGap:   0,
			maxBatch: 125,
			want:     []runtime.BatchReadRequest{{StartAddress: 10, Count: 4, FunctionCode: 3}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, GroupForBatchRead(c.mappings, c.maxGap, c.maxBatch))
		})
	}
}

func TestGroupForBatchReadStable(t *testing.T) {
	input := []*runtime.RegisterMapping{mapping(5, 1, 4), mapping(5, 1, 3)}
	got := GroupForBatchRead(input, 10, 125)
	assert.Equal(t, []runtime.BatchReadRequest{
		{StartAddress: 5, Count: 1, FunctionCode: 4},
		{StartAddress: 5, Count: 1, FunctionCode: 3},
	}, got)
	assert.Equal(t, uint8(4), input[0].Code(), "input order untouched")
}

func TestOptionsPlan(t *testing.T) {
	got := Options{}.Plan([]*runtime.RegisterMapping{mapping(0, 1, 3), mapping(1, 1, 3)})
	assert.Equal(t, []runtime.BatchReadRequest{{StartAddress: 0, Count: 2, FunctionCode: 3}}, got)
	assert.Equal(t, DefaultOptions(), Options{MaxGap: 10, MaxBatchSize: 125})
}
