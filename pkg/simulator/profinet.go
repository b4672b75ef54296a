package simulator

import (
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/utils/binutil"
)

// profinet answers cyclic output frames with the input image and serves records from the
// registers, one word per index.
func (d *Drive) profinet() handler {
	var cycle uint16
	return func(req []byte) ([]byte, bool) {
		if len(req) >= 2 && binutil.ParseUint16(req) == codec.FrameIDOutput {
			f, err := codec.ParseRTFrame(req)
			if err != nil {
				return nil, false
			}
			d.setOutputs(f.Data)
			cycle++
			in := &codec.RTFrame{FrameID: codec.FrameIDInput, Data: d.inputImage(processImageWords), CycleCounter: cycle, DataStatus: codec.DataStatusRun}
			return in.Marshal(), true
		}

		r, blockType, err := codec.ParseRecord(req)
		if err != nil {
			return nil, false
		}
		switch blockType {
		case codec.BlockReadRequest:
			n := codec.RecordLength(req) / 2
			words, ok := d.getRange(uint32(r.Index), n)
			if !ok {
				return codec.RecordResponse(r, codec.BlockReadResponse, nil, &codec.PNIOInvalidIndex), true
			}
			buf := make([]byte, n*2)
			for i, w := range words {
				binutil.WriteUint16(buf[i*2:], w)
			}
			return codec.RecordResponse(r, codec.BlockReadResponse, buf, nil), true
		case codec.BlockWriteRequest:
			for i, w := range binutil.Registers(r.Data) {
				d.Set(uint32(r.Index)+uint32(i), w)
			}
			return codec.RecordResponse(r, codec.BlockWriteResponse, nil, nil), true
		default:
			return nil, false
		}
	}
}
