package codec

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vfdgateway/pkg/utils/binutil"
)

/*
PROFINET RT cyclic frame:
  frameId(2) io-data cycleCounter(2) dataStatus(1) transferStatus(1)

Acyclic record access, IODReadReqHeader / IODWriteReqHeader (64 bytes):
  blockType(2) blockLength(2) version(2) seq(2) arUUID(16) api(4) slot(2) subslot(2)
  padding(2) index(2) recordDataLength(4) pnioStatus(4, responses) padding(20)
followed by record data.
*/

const (
	FrameIDOutput        = 0x8000
	FrameIDInput         = 0x8001
	DataStatusRun        = 0x35
	rtTrailerLength      = 4
	RecordHeaderLength   = 64
	BlockReadRequest     = 0x0009
	BlockReadResponse    = 0x8009
	BlockWriteRequest    = 0x0008
	BlockWriteResponse   = 0x8008
	blockVersion         = 0x0100
	MaxRecordIndex       = 0x7FFF
	dataStatusValid      = 0x04
	dataStatusProviderOn = 0x10
)

var (
	ErrRTMalformed     = errors.New("malformed profinet rt frame")
	ErrRTProvider      = errors.New("profinet provider not in run state")
	ErrRecordMalformed = errors.New("malformed profinet record block")
	ErrRecordSequence  = errors.New("profinet record sequence mismatch")
)

// PNIOError is a negative PNIO status of a record response.
type PNIOError struct {
	Code, Decode, Code1, Code2 uint8
}

func (e *PNIOError) Error() string {
	return fmt.Sprintf("pnio status %02X %02X %02X %02X", e.Code, e.Decode, e.Code1, e.Code2)
}

// PNIO status answered for an unknown record index.
var PNIOInvalidIndex = PNIOError{Code: 0xDE, Decode: 0x80, Code1: 0xB0, Code2: 0x00}

// RTFrame is one cyclic exchange of IO data words.
type RTFrame struct {
	FrameID      uint16
	Data         []uint16
	CycleCounter uint16
	DataStatus   uint8
}

func (f *RTFrame) Marshal() []byte {
	buf := make([]byte, 2+len(f.Data)*2+rtTrailerLength)
	binutil.WriteUint16(buf, f.FrameID)
	for i, w := range f.Data {
		binutil.WriteUint16(buf[2+i*2:], w)
	}
	n := 2 + len(f.Data)*2
	binutil.WriteUint16(buf[n:], f.CycleCounter)
	buf[n+2] = f.DataStatus
	return buf
}

func ParseRTFrame(buf []byte) (*RTFrame, error) {
	if len(buf) < 2+rtTrailerLength || (len(buf)-2-rtTrailerLength)%2 != 0 {
		return nil, ErrRTMalformed
	}
	n := len(buf) - rtTrailerLength
	f := &RTFrame{
		FrameID:      binutil.ParseUint16(buf),
		Data:         binutil.Registers(buf[2:n]),
		CycleCounter: binutil.ParseUint16(buf[n:]),
		DataStatus:   buf[n+2],
	}
	return f, nil
}

// ParseInputFrame checks the device answer to a cyclic output frame.
func ParseInputFrame(resp []byte) (*RTFrame, error) {
	f, err := ParseRTFrame(resp)
	if err != nil {
		return nil, err
	}
	if f.FrameID != FrameIDInput {
		return nil, fmt.Errorf("%w: frame id 0x%04X", ErrRTMalformed, f.FrameID)
	}
	if f.DataStatus&(dataStatusValid|dataStatusProviderOn) != dataStatusValid|dataStatusProviderOn {
		return nil, ErrRTProvider
	}
	return f, nil
}

// Record addresses one record of a submodule.
type Record struct {
	Sequence uint16
	AR       uuid.UUID
	API      uint32
	Slot     uint16
	Subslot  uint16
	Index    uint16
	Data     []byte
	Status   *PNIOError
}

func (r *Record) marshal(blockType uint16, length int) []byte {
	buf := make([]byte, RecordHeaderLength, RecordHeaderLength+len(r.Data))
	binutil.WriteUint16(buf[0:], blockType)
	binutil.WriteUint16(buf[2:], RecordHeaderLength-4)
	binutil.WriteUint16(buf[4:], blockVersion)
	binutil.WriteUint16(buf[6:], r.Sequence)
	copy(buf[8:24], r.AR[:])
	binutil.WriteUint32(buf[24:], r.API)
	binutil.WriteUint16(buf[28:], r.Slot)
	binutil.WriteUint16(buf[30:], r.Subslot)
	binutil.WriteUint16(buf[34:], r.Index)
	binutil.WriteUint32(buf[36:], uint32(length))
	if r.Status != nil {
		buf[40], buf[41], buf[42], buf[43] = r.Status.Code, r.Status.Decode, r.Status.Code1, r.Status.Code2
	}
	return append(buf, r.Data...)
}

// ReadRecordRequest asks for length bytes of record r.Index.
func ReadRecordRequest(r *Record, length int) []byte {
	return (&Record{Sequence: r.Sequence, AR: r.AR, API: r.API, Slot: r.Slot, Subslot: r.Subslot, Index: r.Index}).
		marshal(BlockReadRequest, length)
}

func WriteRecordRequest(r *Record) []byte {
	return r.marshal(BlockWriteRequest, len(r.Data))
}

// RecordResponse answers req; a non nil status marks a negative response without data.
func RecordResponse(req *Record, blockType uint16, data []byte, status *PNIOError) []byte {
	resp := *req
	resp.Data = data
	resp.Status = status
	if status != nil {
		resp.Data = nil
	}
	length := len(resp.Data)
	if blockType == BlockWriteResponse {
		length = len(req.Data)
		resp.Data = nil
	}
	return resp.marshal(blockType, length)
}

// ParseRecord decodes any record block and returns its block type.
func ParseRecord(buf []byte) (*Record, uint16, error) {
	if len(buf) < RecordHeaderLength || binutil.ParseUint16(buf[2:]) != RecordHeaderLength-4 {
		return nil, 0, ErrRecordMalformed
	}
	r := &Record{
		Sequence: binutil.ParseUint16(buf[6:]),
		API:      binutil.ParseUint32(buf[24:]),
		Slot:     binutil.ParseUint16(buf[28:]),
		Subslot:  binutil.ParseUint16(buf[30:]),
		Index:    binutil.ParseUint16(buf[34:]),
		Data:     binutil.Dup(buf[RecordHeaderLength:]),
	}
	copy(r.AR[:], buf[8:24])
	if buf[40] != 0 {
		r.Status = &PNIOError{Code: buf[40], Decode: buf[41], Code1: buf[42], Code2: buf[43]}
	}
	return r, binutil.ParseUint16(buf[0:]), nil
}

// RecordLength is the record data length field of a block.
func RecordLength(buf []byte) int {
	if len(buf) < RecordHeaderLength {
		return 0
	}
	return int(binutil.ParseUint32(buf[36:]))
}

func checkRecord(req, resp []byte, want uint16) (*Record, error) {
	q, _, err := ParseRecord(req)
	if err != nil {
		return nil, err
	}
	r, blockType, err := ParseRecord(resp)
	if err != nil {
		return nil, err
	}
	if blockType != want || r.Index != q.Index || r.Slot != q.Slot || r.Subslot != q.Subslot {
		return nil, ErrRecordMalformed
	}
	if r.Sequence != q.Sequence || r.AR != q.AR {
		return nil, ErrRecordSequence
	}
	if r.Status != nil {
		return nil, r.Status
	}
	return r, nil
}

func ParseReadRecordResponse(req, resp []byte) ([]byte, error) {
	r, err := checkRecord(req, resp, BlockReadResponse)
	if err != nil {
		return nil, err
	}
	return r.Data, nil
}

func ParseWriteRecordResponse(req, resp []byte) error {
	_, err := checkRecord(req, resp, BlockWriteResponse)
	return err
}
