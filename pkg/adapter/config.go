package adapter

import (
	"github.com/mitchellh/mapstructure"

	"vfdgateway/pkg/runtime"
)

// Decode copies cfg into the typed struct out, matching json tags and converting numbers loosely
// (JSON gives float64 for every number).
func Decode(cfg runtime.Configuration, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(cfg))
}
