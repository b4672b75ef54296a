package codec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameLengthRTU(t *testing.T) {
	n, err := FrameLengthRTU([]byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = FrameLengthRTU([]byte{0x01, 0x03, 0x14})
	assert.Equal(t, ReadResponseLengthRTU(10), n)

	n, _ = FrameLengthRTU([]byte{0x01, 0x83})
	assert.Equal(t, 5, n)

	n, _ = FrameLengthRTU([]byte{0x01, 0x06})
	assert.Equal(t, 8, n)

	_, err = FrameLengthRTU([]byte{0x01, 0x2B})
	assert.ErrorIs(t, err, ErrUnsupportedRequestPDU)
}

func TestSDO(t *testing.T) {
	req := UploadRequest(0x6041, 0)
	assert.Equal(t, []byte{0x40, 0x41, 0x60, 0x00, 0, 0, 0, 0}, req)

	data, err := ParseUploadResponse(req, UploadResponse(0x6041, 0, []byte{0x37, 0x06}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x37, 0x06}, data)

	_, err = ParseUploadResponse(req, AbortResponse(0x6041, 0, 0x06020000))
	var abort *SDOAbortError
	require.ErrorAs(t, err, &abort)
	assert.Contains(t, err.Error(), "object does not exist")

	_, err = ParseUploadResponse(req, UploadResponse(0x6042, 0, []byte{1, 0}))
	assert.ErrorIs(t, err, ErrSDOMismatch)

	down := DownloadRequest(0x6040, 0, []byte{0x0F, 0x00})
	assert.Equal(t, uint8(0x2B), down[0])
	s, err := ParseSDO(down)
	require.NoError(t, err)
	assert.True(t, s.IsDownloadRequest())
	assert.Equal(t, 2, s.Size())
	assert.NoError(t, ParseDownloadResponse(down, DownloadResponse(0x6040, 0)))
}

func TestBACnetReadProperty(t *testing.T) {
	oid := ObjectID{Type: ObjectAnalogValue, Instance: 5}
	apdu := ReadPropertyAPDU(7, oid)
	frame := BVLC(NPDU(apdu, true))
	assert.Equal(t, []byte{0x81, 0x0A, 0x00, byte(len(frame))}, frame[:4])

	npdu, err := StripBVLC(frame)
	require.NoError(t, err)
	got, err := APDU(npdu)
	require.NoError(t, err)
	r, err := ParsePropertyRequest(got)
	require.NoError(t, err)
	assert.Equal(t, oid, r.Object)
	assert.Equal(t, uint8(PropertyPresentValue), r.Property)

	v, err := ParseReadPropertyAck(apdu, ReadPropertyAck(7, oid, PropertyPresentValue, ValueFor(oid.Type, 49.5)))
	require.NoError(t, err)
	assert.Equal(t, 49.5, v.Float)

	_, err = ParseReadPropertyAck(apdu, ReadPropertyAck(8, oid, PropertyPresentValue, ValueFor(oid.Type, 1)))
	assert.ErrorIs(t, err, ErrBACnetInvoke)

	_, err = ParseReadPropertyAck(apdu, ErrorPDU(7, ServiceReadProperty, ErrorClassObject, ErrorCodeUnknownObject))
	var be *BACnetError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, uint8(ErrorCodeUnknownObject), be.Code)
}

func TestBACnetWriteProperty(t *testing.T) {
	oid := ObjectID{Type: ObjectMultiStateValue, Instance: 300}
	apdu := WritePropertyAPDU(1, oid, ValueFor(oid.Type, 3), 8)
	r, err := ParsePropertyRequest(apdu)
	require.NoError(t, err)
	assert.Equal(t, float64(3), r.Value.Float)
	assert.Equal(t, uint8(8), r.Priority)
	assert.NoError(t, ParseWritePropertyAck(apdu, SimpleAck(1, ServiceWriteProperty)))

	neg := WritePropertyAPDU(2, ObjectID{Type: ObjectAnalogOutput, Instance: 1}, Value{Tag: appTagSigned, Float: -20}, 0)
	r, err = ParsePropertyRequest(neg)
	require.NoError(t, err)
	assert.Equal(t, float64(-20), r.Value.Float)
	assert.Zero(t, r.Priority)
}

func TestCIPPath(t *testing.T) {
	cases := []struct {
		path Path
		want []byte
	}{
		{Path{Class: CIPClassAssembly, Instance: 100, Attribute: CIPAttributeAssemblyData}, []byte{0x20, 0x04, 0x24, 0x64, 0x30, 0x03}},
		{Path{Class: CIPClassParameter, Instance: 300, Attribute: CIPAttributeParameter}, []byte{0x20, 0x0F, 0x25, 0x00, 0x2C, 0x01, 0x30, 0x01}},
		{Path{Class: CIPClassParameter, Instance: 0x12345, Attribute: CIPAttributeParameter}, []byte{0x20, 0x0F, 0x26, 0x00, 0x45, 0x23, 0x01, 0x00, 0x30, 0x01}},
	}
	for _, c := range cases {
		buf := c.path.Marshal()
		assert.Equal(t, c.want, buf)
		back, err := ParsePath(buf)
		require.NoError(t, err)
		assert.Equal(t, c.path, back)
	}

	_, err := ParsePath([]byte{0x20, 0x04, 0x25, 0x00})
	assert.ErrorIs(t, err, ErrCIPMalformed)
	_, err = ParsePath([]byte{0x91, 0x03})
	assert.ErrorIs(t, err, ErrCIPMalformed)

	ce := &CIPError{Service: CIPGetAttributeSingle, Status: CIPStatusPathUnknown}
	assert.Contains(t, ce.Error(), "path destination unknown")
	assert.Contains(t, (&CIPError{Status: 0x7F}).Error(), "unknown status")
}

func TestSD2(t *testing.T) {
	ppo, err := PPOType(1)
	require.NoError(t, err)
	assert.Equal(t, 12, ppo.Length())

	req := (&Telegram{DA: 3, SA: 1, FC: FCDataExchange, PKW: PKW{AK: AKRequestWord, PNU: 1082}, PZD: []uint16{0x047F, 0x4000}}).MarshalSD2(ppo)
	assert.Equal(t, []byte{SD2, 15, 15, SD2, 3, 1, FCDataExchange}, req[:7])
	assert.Equal(t, byte(ED), req[len(req)-1])

	got, err := ParseSD2(req, ppo)
	require.NoError(t, err)
	assert.Equal(t, uint16(1082), got.PKW.PNU)
	assert.Equal(t, []uint16{0x047F, 0x4000}, got.PZD)

	resp := (&Telegram{DA: 1, SA: 3, FC: FCResponseDataLo, PKW: PKW{AK: AKReplyWord, PNU: 1082, Value: 1500}, PZD: []uint16{0x0637, 0}}).MarshalSD2(ppo)
	in, err := ParseDataExchange(req, resp, ppo)
	require.NoError(t, err)
	v, err := ParameterResult(got.PKW, in.PKW)
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), v)

	resp[len(resp)-2]++
	_, err = ParseDataExchange(req, resp, ppo)
	assert.ErrorIs(t, err, ErrSD2Checksum)

	_, err = ParameterResult(got.PKW, PKW{AK: AKReplyError, PNU: 1082, Value: 1})
	var pe *PKWError
	assert.ErrorAs(t, err, &pe)

	_, err = PPOType(9)
	assert.ErrorIs(t, err, ErrPPOType)
}

func TestRecord(t *testing.T) {
	r := &Record{Sequence: 1, AR: uuid.New(), Slot: 1, Subslot: 1, Index: 0x2000}
	req := ReadRecordRequest(r, 4)
	assert.Len(t, req, RecordHeaderLength)
	assert.Equal(t, 4, RecordLength(req))

	q, blockType, err := ParseRecord(req)
	require.NoError(t, err)
	assert.Equal(t, uint16(BlockReadRequest), blockType)
	assert.Equal(t, r.AR, q.AR)

	data, err := ParseReadRecordResponse(req, RecordResponse(q, BlockReadResponse, []byte{0, 1, 0, 2}, nil))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 2}, data)

	_, err = ParseReadRecordResponse(req, RecordResponse(q, BlockReadResponse, nil, &PNIOInvalidIndex))
	var pe *PNIOError
	require.ErrorAs(t, err, &pe)

	q.Sequence = 2
	_, err = ParseReadRecordResponse(req, RecordResponse(q, BlockReadResponse, nil, nil))
	assert.ErrorIs(t, err, ErrRecordSequence)

	w := &Record{Sequence: 3, AR: r.AR, Slot: 1, Subslot: 1, Index: 0x2000, Data: []byte{0, 5}}
	wreq := WriteRecordRequest(w)
	wq, _, err := ParseRecord(wreq)
	require.NoError(t, err)
	assert.NoError(t, ParseWriteRecordResponse(wreq, RecordResponse(wq, BlockWriteResponse, nil, nil)))
}

func TestRTFrame(t *testing.T) {
	out := (&RTFrame{FrameID: FrameIDOutput, Data: []uint16{0x047F, 0x2000}, CycleCounter: 32, DataStatus: DataStatusRun}).Marshal()
	f, err := ParseRTFrame(out)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x047F, 0x2000}, f.Data)

	_, err = ParseInputFrame(out)
	assert.ErrorIs(t, err, ErrRTMalformed)

	in := (&RTFrame{FrameID: FrameIDInput, Data: []uint16{1}, DataStatus: 0}).Marshal()
	_, err = ParseInputFrame(in)
	assert.ErrorIs(t, err, ErrRTProvider)
}

func TestPKWPageSelect(t *testing.T) {
	ppo, _ := PPOType(2)
	req := (&Telegram{DA: 3, SA: 1, FC: FCDataExchange, PKW: PKW{AK: AKChangeWord, PNU: 2302, Value: 150}}).MarshalSD2(ppo)
	assert.Equal(t, byte(pnuPageSelect), req[7+3])
	got, err := ParseSD2(req, ppo)
	require.NoError(t, err)
	assert.Equal(t, uint16(2302), got.PKW.PNU)
	assert.Len(t, got.PZD, 6)
}
