package codec

import (
	"errors"
	"fmt"

	"vfdgateway/pkg/utils/binutil"
)

/*
PROFIBUS DP variable length telegram (SD2):
  68 LE LEr 68 DA SA FC data FCS 16
  LE counts DA, SA, FC and data; FCS is their sum mod 256.

Data_Exchange carries a PROFIdrive PPO in both directions:
  PKW(8, PPO 1, 2, 5) = PKE(2) IND(2) PWE(4)
  PZD(2 * words)
PKE = AK(4) SPM(1) PNU(11)
*/

const (
	SD2              = 0x68
	ED               = 0x16
	SC               = 0xE5
	FCDataExchange   = 0x5D
	FCFrameCountBit  = 0x20
	FCResponseDataLo = 0x08
	PKWLength        = 8

	AKNone        = 0
	AKRequestWord = 1
	AKChangeWord  = 2
	AKReplyWord   = 1
	AKReplyError  = 7

	// PNUs from 2000 set the page select bit of IND and carry PNU-2000.
	pnuPageOffset = 2000
	pnuPageSelect = 0x80
	MaxPNU        = pnuPageOffset + 0x07FF
)

var (
	ErrSD2Malformed = errors.New("malformed profibus telegram")
	ErrSD2Checksum  = errors.New("profibus frame check sequence mismatch")
	ErrSD2Address   = errors.New("profibus response address mismatch")
	ErrPPOLength    = errors.New("ppo length does not match ppo type")
	ErrPPOType      = errors.New("unknown ppo type")
	ErrNoPKW        = errors.New("ppo type has no parameter channel")
)

// PPO describes a PROFIdrive parameter process data object layout.
type PPO struct {
	Type     int
	PKW      bool
	PZDWords int
}

var ppoTypes = map[int]PPO{
	1: {Type: 1, PKW: true, PZDWords: 2},
	2: {Type: 2, PKW: true, PZDWords: 6},
	3: {Type: 3, PKW: false, PZDWords: 2},
	4: {Type: 4, PKW: false, PZDWords: 6},
	5: {Type: 5, PKW: true, PZDWords: 10},
}

func PPOType(t int) (PPO, error) {
	p, ok := ppoTypes[t]
	if !ok {
		return PPO{}, fmt.Errorf("%w: %d", ErrPPOType, t)
	}
	return p, nil
}

func (p PPO) Length() int {
	n := p.PZDWords * 2
	if p.PKW {
		n += PKWLength
	}
	return n
}

// PKW is one parameter channel message.
type PKW struct {
	AK       uint8
	PNU      uint16
	SubIndex uint8
	Value    uint32
}

func (k PKW) marshal(buf []byte) {
	pnu, page := k.PNU, byte(0)
	if pnu >= pnuPageOffset {
		pnu, page = pnu-pnuPageOffset, pnuPageSelect
	}
	binutil.WriteUint16(buf[0:], uint16(k.AK)<<12|pnu&0x07FF)
	buf[2] = k.SubIndex
	buf[3] = page
	binutil.WriteUint32(buf[4:], k.Value)
}

func parsePKW(buf []byte) PKW {
	pke := binutil.ParseUint16(buf[0:])
	k := PKW{
		AK:       uint8(pke >> 12),
		PNU:      pke & 0x07FF,
		SubIndex: buf[2],
		Value:    binutil.ParseUint32(buf[4:]),
	}
	if buf[3]&pnuPageSelect != 0 {
		k.PNU += pnuPageOffset
	}
	return k
}

// PKWError is a parameter request the drive could not execute.
type PKWError struct {
	PNU  uint16
	Code uint32
}

func (e *PKWError) Error() string {
	return fmt.Sprintf("parameter %d request rejected with error number %d", e.PNU, e.Code)
}

// Telegram is one decoded Data_Exchange payload.
type Telegram struct {
	DA, SA, FC uint8
	PKW        PKW
	PZD        []uint16
}

// MarshalSD2 frames the PPO of t.
func (t *Telegram) MarshalSD2(ppo PPO) []byte {
	data := make([]byte, ppo.Length())
	off := 0
	if ppo.PKW {
		t.PKW.marshal(data)
		off = PKWLength
	}
	for i := 0; i < ppo.PZDWords && i < len(t.PZD); i++ {
		binutil.WriteUint16(data[off+i*2:], t.PZD[i])
	}
	le := byte(3 + len(data))
	buf := make([]byte, 0, len(data)+9)
	buf = append(buf, SD2, le, le, SD2, t.DA, t.SA, t.FC)
	buf = append(buf, data...)
	var fcs byte
	for _, b := range buf[4:] {
		fcs += b
	}
	return append(buf, fcs, ED)
}

// ParseSD2 decodes and checks an SD2 telegram carrying a ppo sized payload.
func ParseSD2(buf []byte, ppo PPO) (*Telegram, error) {
	if len(buf) < 9 || buf[0] != SD2 || buf[3] != SD2 || buf[1] != buf[2] {
		return nil, ErrSD2Malformed
	}
	le := int(buf[1])
	if len(buf) != le+6 || buf[len(buf)-1] != ED {
		return nil, ErrSD2Malformed
	}
	var fcs byte
	for _, b := range buf[4 : 4+le] {
		fcs += b
	}
	if fcs != buf[4+le] {
		return nil, ErrSD2Checksum
	}
	data := buf[7 : 4+le]
	if len(data) != ppo.Length() {
		return nil, ErrPPOLength
	}
	t := &Telegram{DA: buf[4], SA: buf[5], FC: buf[6], PZD: make([]uint16, ppo.PZDWords)}
	if ppo.PKW {
		t.PKW = parsePKW(data)
		data = data[PKWLength:]
	}
	for i := range t.PZD {
		t.PZD[i] = binutil.ParseUint16(data[i*2:])
	}
	return t, nil
}

// ParseDataExchange checks a slave answer against the request it answers.
func ParseDataExchange(req, resp []byte, ppo PPO) (*Telegram, error) {
	if len(resp) == 1 && resp[0] == SC {
		return nil, fmt.Errorf("%w: short acknowledge without input data", ErrSD2Malformed)
	}
	t, err := ParseSD2(resp, ppo)
	if err != nil {
		return nil, err
	}
	if len(req) < 6 || t.DA != req[5] || t.SA != req[4] {
		return nil, ErrSD2Address
	}
	return t, nil
}

// ParameterResult interprets the PKW answer to a parameter request.
func ParameterResult(request, reply PKW) (uint16, error) {
	if reply.PNU != request.PNU {
		return 0, fmt.Errorf("%w: parameter %d answered for %d", ErrSD2Malformed, reply.PNU, request.PNU)
	}
	switch reply.AK {
	case AKReplyWord:
		return uint16(reply.Value), nil
	case AKReplyError:
		return 0, &PKWError{PNU: reply.PNU, Code: reply.Value}
	default:
		return 0, fmt.Errorf("%w: reply identifier %d", ErrSD2Malformed, reply.AK)
	}
}
