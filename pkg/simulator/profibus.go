package simulator

import (
	"vfdgateway/pkg/codec"
)

// profibus answers Data_Exchange telegrams for station ID: output PZD is latched, the PKW
// request is executed against the registers and the input PZD is returned.
func (d *Drive) profibus(req []byte) ([]byte, bool) {
	ppo, err := codec.PPOType(d.PPO)
	if err != nil {
		return nil, false
	}
	t, err := codec.ParseSD2(req, ppo)
	if err != nil || !d.answers(t.DA) {
		return nil, false
	}
	d.setOutputs(t.PZD)

	answer := &codec.Telegram{DA: t.SA, SA: t.DA, FC: codec.FCResponseDataLo, PZD: d.inputImage(ppo.PZDWords)}
	if ppo.PKW {
		answer.PKW = d.servePKW(t.PKW)
	}
	return answer.MarshalSD2(ppo), true
}

func (d *Drive) servePKW(k codec.PKW) codec.PKW {
	reply := codec.PKW{PNU: k.PNU, SubIndex: k.SubIndex}
	switch k.AK {
	case codec.AKNone:
		reply.AK = codec.AKNone
	case codec.AKRequestWord:
		v, ok := d.Get(uint32(k.PNU))
		if !ok {
			// error number 0: impermissible parameter number
			reply.AK = codec.AKReplyError
			return reply
		}
		reply.AK = codec.AKReplyWord
		reply.Value = uint32(v)
	case codec.AKChangeWord:
		d.Set(uint32(k.PNU), uint16(k.Value))
		reply.AK = codec.AKReplyWord
		reply.Value = k.Value
	default:
		reply.AK = codec.AKReplyError
		reply.Value = 101
	}
	return reply
}
