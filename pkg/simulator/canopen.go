package simulator

import (
	"vfdgateway/pkg/codec"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/binutil"
)

const (
	abortObjectMissing = 0x06020000
	abortCommand       = 0x05040001

	maxNodeID = 127
)

// canopen answers SDO transfers on 0x600+node and reports operational after an NMT start.
func (d *Drive) canopen(req []byte) ([]byte, bool) {
	f, err := transport.UnmarshalCANFrame(req)
	if err != nil {
		return nil, false
	}
	var node uint8
	switch {
	case f.ID == codec.NMTCommandID:
		if len(f.Data) == 2 && f.Data[0] == codec.NMTStartRemote && (d.answers(f.Data[1]) || f.Data[1] == 0) {
			node = f.Data[1]
			if node == 0 {
				node = d.ID
			}
			hb := transport.CANFrame{ID: codec.HeartbeatBase + uint32(node), Data: codec.Heartbeat(codec.NMTStateOperable)}
			return hb.Marshal(), true
		}
		return nil, false
	case f.ID > codec.SDORequestBase && f.ID <= codec.SDORequestBase+maxNodeID && d.answers(uint8(f.ID-codec.SDORequestBase)):
		node = uint8(f.ID - codec.SDORequestBase)
	default:
		return nil, false
	}

	sdo, err := codec.ParseSDO(f.Data)
	if err != nil {
		return nil, false
	}
	var data []byte
	switch {
	case sdo.IsUploadRequest():
		v, ok := d.Get(uint32(sdo.Index))
		if !ok {
			data = codec.AbortResponse(sdo.Index, sdo.SubIndex, abortObjectMissing)
			break
		}
		word := make([]byte, 2)
		binutil.WriteUint16LittleEndian(word, v)
		data = codec.UploadResponse(sdo.Index, sdo.SubIndex, word)
	case sdo.IsDownloadRequest():
		if sdo.Size() < 2 {
			data = codec.AbortResponse(sdo.Index, sdo.SubIndex, abortCommand)
			break
		}
		d.Set(uint32(sdo.Index), binutil.ParseUint16LittleEndian(sdo.Data))
		data = codec.DownloadResponse(sdo.Index, sdo.SubIndex)
	default:
		data = codec.AbortResponse(sdo.Index, sdo.SubIndex, abortCommand)
	}
	resp := transport.CANFrame{ID: codec.SDOResponseBase + uint32(node), Data: data}
	return resp.Marshal(), true
}
