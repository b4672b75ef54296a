package codec

import (
	"errors"
	"fmt"

	"vfdgateway/pkg/utils/binutil"
)

/*
CANopen SDO, 8 data bytes, little-endian:
  cs(1) index(2) subindex(1) data(4)

upload   request  40 ii ii ss 00 00 00 00
         response 4B ii ii ss d0 d1 00 00   (expedited, 2 bytes)
download request  2B ii ii ss d0 d1 00 00
         response 60 ii ii ss 00 00 00 00
abort             80 ii ii ss c0 c1 c2 c3
*/

const (
	SDORequestBase   = 0x600
	SDOResponseBase  = 0x580
	HeartbeatBase    = 0x700
	NMTCommandID     = 0x000
	NMTStartRemote   = 0x01
	NMTStateOperable = 0x05

	sdoUploadRequest    = 0x40
	sdoUploadResponse   = 0x40
	sdoDownloadRequest  = 0x20
	sdoDownloadResponse = 0x60
	sdoAbort            = 0x80
	sdoExpedited        = 0x02
	sdoSizeIndicated    = 0x01
	sdoLength           = 8
)

var (
	ErrSDOMalformed = errors.New("malformed sdo frame")
	ErrSDOMismatch  = errors.New("sdo response does not match request")
	ErrSDOSegmented = errors.New("segmented sdo transfer not supported")
)

var abortText = map[uint32]string{
	0x05040000: "sdo protocol timed out",
	0x05040001: "command specifier not valid",
	0x06010000: "unsupported access to an object",
	0x06010001: "attempt to read a write only object",
	0x06010002: "attempt to write a read only object",
	0x06020000: "object does not exist",
	0x06070010: "data type does not match",
	0x06090011: "sub-index does not exist",
	0x06090030: "invalid value for parameter",
	0x08000000: "general error",
	0x08000020: "data cannot be transferred",
	0x08000022: "data cannot be transferred because of the device state",
}

// SDOAbortError is an SDO abort transfer answered by the node.
type SDOAbortError struct {
	Index    uint16
	SubIndex uint8
	Code     uint32
}

func (e *SDOAbortError) Error() string {
	text, ok := abortText[e.Code]
	if !ok {
		text = "unknown abort code"
	}
	return fmt.Sprintf("sdo abort 0x%08X (%s) on 0x%04X:%02X", e.Code, text, e.Index, e.SubIndex)
}

// SDO is one decoded SDO frame payload.
type SDO struct {
	Command  uint8
	Index    uint16
	SubIndex uint8
	Data     []byte
}

func sdoFrame(cs uint8, index uint16, sub uint8, data []byte) []byte {
	buf := make([]byte, sdoLength)
	buf[0] = cs
	binutil.WriteUint16LittleEndian(buf[1:], index)
	buf[3] = sub
	copy(buf[4:], data)
	return buf
}

func expeditedCommand(base uint8, n int) uint8 {
	return base | uint8(4-n)<<2 | sdoExpedited | sdoSizeIndicated
}

func UploadRequest(index uint16, sub uint8) []byte {
	return sdoFrame(sdoUploadRequest, index, sub, nil)
}

// DownloadRequest builds an expedited download of up to four bytes.
func DownloadRequest(index uint16, sub uint8, data []byte) []byte {
	return sdoFrame(expeditedCommand(sdoDownloadRequest, len(data)), index, sub, data)
}

func UploadResponse(index uint16, sub uint8, data []byte) []byte {
	return sdoFrame(expeditedCommand(sdoUploadResponse, len(data)), index, sub, data)
}

func DownloadResponse(index uint16, sub uint8) []byte {
	return sdoFrame(sdoDownloadResponse, index, sub, nil)
}

func AbortResponse(index uint16, sub uint8, code uint32) []byte {
	data := make([]byte, 4)
	binutil.WriteUint32LittleEndian(data, code)
	return sdoFrame(sdoAbort, index, sub, data)
}

func ParseSDO(buf []byte) (*SDO, error) {
	if len(buf) != sdoLength {
		return nil, ErrSDOMalformed
	}
	return &SDO{
		Command:  buf[0],
		Index:    binutil.ParseUint16LittleEndian(buf[1:]),
		SubIndex: buf[3],
		Data:     binutil.Dup(buf[4:]),
	}, nil
}

// IsUploadRequest and IsDownloadRequest classify a request on the server side.
func (s *SDO) IsUploadRequest() bool   { return s.Command&0xE0 == sdoUploadRequest }
func (s *SDO) IsDownloadRequest() bool { return s.Command&0xE0 == sdoDownloadRequest }

// Size is the number of meaningful data bytes of an expedited transfer.
func (s *SDO) Size() int {
	if s.Command&sdoSizeIndicated == 0 {
		return 4
	}
	return 4 - int(s.Command>>2&0x03)
}

func checkSDO(req, resp []byte) (*SDO, error) {
	r, err := ParseSDO(resp)
	if err != nil {
		return nil, err
	}
	q, err := ParseSDO(req)
	if err != nil {
		return nil, err
	}
	if r.Index != q.Index || r.SubIndex != q.SubIndex {
		return nil, ErrSDOMismatch
	}
	if r.Command == sdoAbort {
		return nil, &SDOAbortError{Index: r.Index, SubIndex: r.SubIndex, Code: binutil.ParseUint32LittleEndian(r.Data)}
	}
	return r, nil
}

// ParseUploadResponse returns the expedited payload of an upload response.
func ParseUploadResponse(req, resp []byte) ([]byte, error) {
	r, err := checkSDO(req, resp)
	if err != nil {
		return nil, err
	}
	if r.Command&0xE0 != sdoUploadResponse {
		return nil, ErrSDOMismatch
	}
	if r.Command&sdoExpedited == 0 {
		return nil, ErrSDOSegmented
	}
	return r.Data[:r.Size()], nil
}

func ParseDownloadResponse(req, resp []byte) error {
	r, err := checkSDO(req, resp)
	if err != nil {
		return err
	}
	if r.Command != sdoDownloadResponse {
		return ErrSDOMismatch
	}
	return nil
}

// NMTStart addresses the "start remote node" command to node.
func NMTStart(node uint8) []byte {
	return []byte{NMTStartRemote, node}
}

// Heartbeat is the one byte NMT state a node reports on 0x700+node.
func Heartbeat(state uint8) []byte {
	return []byte{state}
}
