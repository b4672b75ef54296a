package runtime

import (
	"encoding/json"
	"time"

	"vfdgateway/pkg/runtime/constant"
)

// Configuration is the protocol specific adapter configuration of a device, shaped by the
// adapter's JSON schema.
type Configuration map[string]interface{}

func (c Configuration) DeepCopy() Configuration {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		out := make(Configuration, len(c))
		for k, v := range c {
			out[k] = v
		}
		return out
	}
	out := make(Configuration, len(c))
	_ = json.Unmarshal(data, &out)
	return out
}

type Device struct {
	ObjectMeta
	Brand            constant.Brand    `json:"brand"`
	Protocol         constant.Protocol `json:"protocol"`
	Model            string            `json:"model,omitempty"`
	Location         string            `json:"location,omitempty"`
	Configuration    Configuration     `json:"configuration"`
	PollIntervalMs   int               `json:"pollIntervalMs,omitempty"`
	Topic            string            `json:"topic,omitempty"`
	ConnectionStatus ConnectionStatus  `json:"connectionStatus"`
	LastSeen         *time.Time        `json:"lastSeen,omitempty"`
	CollectStatus    string            `json:"collectStatus"`
}

// DeviceMeta is the folded view of a Device returned by list endpoints.
type DeviceMeta struct {
	ObjectMeta
	Brand            constant.Brand    `json:"brand"`
	Protocol         constant.Protocol `json:"protocol"`
	Model            string            `json:"model,omitempty"`
	ConnectionStatus ConnectionStatus  `json:"connectionStatus"`
	CollectStatus    string            `json:"collectStatus"`
}

func (d *Device) Fold() *DeviceMeta {
	return &DeviceMeta{
		ObjectMeta:       d.ObjectMeta,
		Brand:            d.Brand,
		Protocol:         d.Protocol,
		Model:            d.Model,
		ConnectionStatus: d.ConnectionStatus,
		CollectStatus:    d.CollectStatus,
	}
}

func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	out := *d
	out.Configuration = d.Configuration.DeepCopy()
	if d.LastSeen != nil {
		ls := *d.LastSeen
		out.LastSeen = &ls
	}
	return &out
}

func (d *Device) PollInterval(fallback time.Duration) time.Duration {
	if d.PollIntervalMs <= 0 {
		return fallback
	}
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}
