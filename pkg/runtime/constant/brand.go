package constant

import (
	"encoding/json"
	"fmt"
)

type Brand int8

const (
	ABB Brand = iota
	Siemens
	Schneider
	Danfoss
	Yaskawa
	AllenBradley
	Mitsubishi
	Delta
)

var BrandToString = map[Brand]string{
	ABB:          "abb",
	Siemens:      "siemens",
	Schneider:    "schneider",
	Danfoss:      "danfoss",
	Yaskawa:      "yaskawa",
	AllenBradley: "allen_bradley",
	Mitsubishi:   "mitsubishi",
	Delta:        "delta",
}

var StringToBrand = map[string]Brand{
	"abb":           ABB,
	"siemens":       Siemens,
	"schneider":     Schneider,
	"danfoss":       Danfoss,
	"yaskawa":       Yaskawa,
	"allen_bradley": AllenBradley,
	"mitsubishi":    Mitsubishi,
	"delta":         Delta,
}

func Brands() []Brand {
	return []Brand{ABB, Siemens, Schneider, Danfoss, Yaskawa, AllenBradley, Mitsubishi, Delta}
}

func ParseBrand(s string) (Brand, error) {
	b, ok := StringToBrand[s]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrBrand, s)
	}
	return b, nil
}

func (b Brand) String() string {
	if s, ok := BrandToString[b]; ok {
		return s
	}
	return fmt.Sprintf("brand(%d)", b)
}

func (b Brand) MarshalJSON() ([]byte, error) {
	if s, ok := BrandToString[b]; ok {
		return json.Marshal(s)
	}
	return nil, fmt.Errorf("unknown brand %d", b)
}

func (b *Brand) UnmarshalJSON(bytes []byte) error {
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return err
	}
	v, err := ParseBrand(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}
