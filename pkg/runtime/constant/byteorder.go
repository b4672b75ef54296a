package constant

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ByteOrder is used for both axes of a register value: the byte order inside a 16-bit word and
// the order of the two words of a 32-bit value.
type ByteOrder byte

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

var ByteOrderToString = map[ByteOrder]string{
	BigEndian:    "big",
	LittleEndian: "little",
}

var StringToByteOrder = map[string]ByteOrder{
	"big":    BigEndian,
	"little": LittleEndian,
}

func (bo ByteOrder) String() string {
	return ByteOrderToString[bo]
}

func (bo ByteOrder) MarshalJSON() ([]byte, error) {
	if s, ok := ByteOrderToString[bo]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown byte order %d", bo)
}

func (bo *ByteOrder) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	return bo.set(s)
}

func (bo *ByteOrder) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return bo.set(s)
}

func (bo *ByteOrder) set(s string) error {
	v, ok := StringToByteOrder[s]
	if !ok {
		return fmt.Errorf("unknown byte order %s", s)
	}
	*bo = v
	return nil
}
