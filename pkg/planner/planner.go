// Package planner groups register mappings into contiguous batch reads.
package planner

import (
	"sort"

	"vfdgateway/pkg/runtime"
)

const (
	DefaultMaxGap = 10
	// DefaultMaxBatchSize is the Modbus holding register ceiling: 256 byte ADU minus slave,
	// function code, byte count and crc leaves 250 bytes, 125 registers.
	DefaultMaxBatchSize = 125
)

type Options struct {
	MaxGap       uint16 `json:"maxGap" yaml:"maxGap"`
	MaxBatchSize uint16 `json:"maxBatchSize" yaml:"maxBatchSize"`
}

func DefaultOptions() Options {
	return Options{MaxGap: DefaultMaxGap, MaxBatchSize: DefaultMaxBatchSize}
}

// GroupForBatchRead sorts mappings by address (stable) and merges neighbours into one request
// while the gap stays within maxGap, the span within maxBatchSize and the function code matches.
func GroupForBatchRead(mappings []*runtime.RegisterMapping, maxGap, maxBatchSize uint16) []runtime.BatchReadRequest {
	if len(mappings) == 0 {
		return []runtime.BatchReadRequest{}
	}
	sorted := make([]*runtime.RegisterMapping, len(mappings))
	copy(sorted, mappings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RegisterAddress < sorted[j].RegisterAddress
	})

	batches := make([]runtime.BatchReadRequest, 0)
	current := open(sorted[0])
	for _, m := range sorted[1:] {
		end := int64(current.StartAddress) + int64(current.Count)
		gap := int64(m.RegisterAddress) - end
		newCount := int64(m.RegisterAddress) + int64(m.Count()) - int64(current.StartAddress)
		if gap <= int64(maxGap) && newCount <= int64(maxBatchSize) && m.Code() == current.FunctionCode {
			if newCount > int64(current.Count) {
				current.Count = uint16(newCount)
			}
			continue
		}
		batches = append(batches, current)
		current = open(m)
	}
	return append(batches, current)
}

// Plan is GroupForBatchRead with o's limits, zero fields taking the defaults.
func (o Options) Plan(mappings []*runtime.RegisterMapping) []runtime.BatchReadRequest {
	maxGap, maxBatch := o.MaxGap, o.MaxBatchSize
	if maxBatch == 0 {
		maxBatch = DefaultMaxBatchSize
	}
	return GroupForBatchRead(mappings, maxGap, maxBatch)
}

func open(m *runtime.RegisterMapping) runtime.BatchReadRequest {
	return runtime.BatchReadRequest{
		StartAddress: m.RegisterAddress,
		Count:        m.Count(),
		FunctionCode: m.Code(),
	}
}
