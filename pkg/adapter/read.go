package adapter

import (
	"context"
	"fmt"

	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/statusword"
	"vfdgateway/pkg/transport"
)

// readParameters plans reads, issues them and decodes every mapping on its own so one bad
// register never hides the others.
func (b *Base) readParameters(ctx context.Context, e *entry, mappings []*runtime.RegisterMapping) *runtime.ReadResult {
	result := runtime.NewReadResult()
	start := result.Timestamp

	readable := make([]*runtime.RegisterMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.IsReadable() {
			readable = append(readable, m)
		}
	}

	batches, owner := b.plan(readable)
	buffers := make([][]byte, len(batches))
	errs := make([]error, len(batches))
	var broken error
	for i, batch := range batches {
		if broken != nil {
			errs[i] = broken
			continue
		}
		buffers[i], errs[i] = e.session.ReadRegisters(ctx, batch.StartAddress, batch.Count, batch.FunctionCode)
		if transport.IsBroken(errs[i]) || ctx.Err() != nil {
			broken = errs[i]
		}
	}

	succeeded := false
	for i, m := range readable {
		idx := owner[i]
		if errs[idx] != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", m.ParameterName, errs[idx]))
			continue
		}
		succeeded = true
		if err := decodeInto(result, m, batches[idx], buffers[idx]); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	if succeeded {
		e.handle.Touch()
	} else if broken != nil {
		b.settle(e, broken)
	}
	result.LatencyMs = runtime.LatencyMs(start)
	return result
}

// plan returns the reads to issue and, for each mapping, the index of the read that covers it.
func (b *Base) plan(mappings []*runtime.RegisterMapping) ([]runtime.BatchReadRequest, []int) {
	owner := make([]int, len(mappings))
	if !b.driver.Batching() {
		batches := make([]runtime.BatchReadRequest, len(mappings))
		for i, m := range mappings {
			batches[i] = runtime.BatchReadRequest{StartAddress: m.RegisterAddress, Count: m.Count(), FunctionCode: m.Code()}
			owner[i] = i
		}
		return batches, owner
	}
	batches := b.planner.Plan(mappings)
	for i, m := range mappings {
		for j, batch := range batches {
			if batch.Contains(m) {
				owner[i] = j
				break
			}
		}
	}
	return batches, owner
}

func extract(batch runtime.BatchReadRequest, buf []byte, m *runtime.RegisterMapping) []byte {
	off := int(m.RegisterAddress-batch.StartAddress) * 2
	end := off + int(m.Count())*2
	if off > len(buf) {
		return nil
	}
	if end > len(buf) {
		end = len(buf)
	}
	return buf[off:end]
}

func decodeInto(result *runtime.ReadResult, m *runtime.RegisterMapping, batch runtime.BatchReadRequest, buf []byte) error {
	data := extract(batch, buf, m)
	if err := codec.CheckLength(data, m.DataType); err != nil {
		return &DecodeError{Parameter: m.ParameterName, Err: err}
	}
	raw := codec.ParseValue(data, m.DataType, m.ByteOrder, m.WordOrder)
	result.RawValues[m.ParameterName] = raw
	if m.DataType == constant.STATUS_WORD {
		table := &statusword.DefaultStatusBits
		if len(m.BitDefinitions) > 0 {
			table = statusword.FromDefinitions(m.BitDefinitions)
		}
		flags, direction := statusword.ParseStatusWord(uint16(raw), table)
		for name, v := range flags {
			result.StatusBits[name] = v
		}
		result.Direction = direction
		result.Parameters[m.ParameterName] = raw
		return nil
	}
	result.Parameters[m.ParameterName] = codec.ApplyScaling(raw, m.Scale(), m.Offset)
	return nil
}
