package constant

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Category int8

const (
	CategoryStatus Category = iota
	CategoryMotor
	CategoryEnergy
	CategoryThermal
	CategoryFault
	CategoryControl
)

var CategoryToString = map[Category]string{
	CategoryStatus:  "status",
	CategoryMotor:   "motor",
	CategoryEnergy:  "energy",
	CategoryThermal: "thermal",
	CategoryFault:   "fault",
	CategoryControl: "control",
}

var StringToCategory = map[string]Category{
	"status":  CategoryStatus,
	"motor":   CategoryMotor,
	"energy":  CategoryEnergy,
	"thermal": CategoryThermal,
	"fault":   CategoryFault,
	"control": CategoryControl,
}

func (c Category) String() string {
	return CategoryToString[c]
}

func (c Category) MarshalJSON() ([]byte, error) {
	if s, ok := CategoryToString[c]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown category %d", c)
}

func (c *Category) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	return c.set(s)
}

func (c *Category) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return c.set(s)
}

func (c *Category) set(s string) error {
	v, ok := StringToCategory[s]
	if !ok {
		return fmt.Errorf("unknown category %s", s)
	}
	*c = v
	return nil
}
