package constant

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type AccessMode int8

const (
	AccessModeReadOnly AccessMode = iota
	AccessModeReadWrite
	AccessModeWriteOnly
)

var ReadWritePropertyToString = map[AccessMode]string{
	AccessModeReadOnly:  "r",
	AccessModeReadWrite: "rw",
	AccessModeWriteOnly: "w",
}

var StringToReadWriteProperty = map[string]AccessMode{
	"r":  AccessModeReadOnly,
	"rw": AccessModeReadWrite,
	"w":  AccessModeWriteOnly,
}

func (am AccessMode) Readable() bool {
	return am == AccessModeReadOnly || am == AccessModeReadWrite
}

func (am AccessMode) Writable() bool {
	return am == AccessModeWriteOnly || am == AccessModeReadWrite
}

func (am AccessMode) String() string {
	return ReadWritePropertyToString[am]
}

func (am AccessMode) MarshalJSON() ([]byte, error) {
	if s, ok := ReadWritePropertyToString[am]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown accessMode %d", am)
}

func (am *AccessMode) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	return am.set(s)
}

func (am *AccessMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return am.set(s)
}

func (am *AccessMode) set(s string) error {
	v, ok := StringToReadWriteProperty[s]
	if !ok {
		return fmt.Errorf("unknown accessMode %s", s)
	}
	*am = v
	return nil
}
