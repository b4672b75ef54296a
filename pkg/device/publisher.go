package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTPublisher sends every reading to data/<gatewayId>/v1/<deviceId> unless the device names its
// own topic.
type MQTTPublisher struct {
	client    mqtt.Client
	gatewayID string
}

func NewMQTTPublisher(client mqtt.Client, gatewayID string) *MQTTPublisher {
	return &MQTTPublisher{client: client, gatewayID: gatewayID}
}

func (p *MQTTPublisher) Topic(d *runtime.Device) string {
	if len(d.Topic) > 0 {
		return d.Topic
	}
	return fmt.Sprintf("data/%s/v1/%s", p.gatewayID, d.ID)
}

func (p *MQTTPublisher) Publish(d *runtime.Device, r *runtime.Reading) error {
	topic := p.Topic(d)
	publishData := NewPublishData(r)
	marshal, err := json.Marshal(publishData)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic, 1, false, marshal)
	if !token.WaitTimeout(mqttTimeout) {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", ErrPublishTimeout)
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", err)
		return err
	}
	klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic, "data", publishData)
	return nil
}

// NewPublishData flattens a reading into one time series entry: parameters by name, then status
// bits, then the direction.
func NewPublishData(r *runtime.Reading) runtime.PublishData {
	values := r.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	pds := make([]runtime.PointData, 0, len(values)+len(r.StatusBits)+1)
	for _, name := range names {
		pds = append(pds, runtime.PointData{DataPointId: name, Value: values[name]})
	}
	bits := make([]string, 0, len(r.StatusBits))
	for name := range r.StatusBits {
		bits = append(bits, name)
	}
	sort.Strings(bits)
	for _, name := range bits {
		pds = append(pds, runtime.PointData{DataPointId: "status." + name, Value: r.StatusBits[name]})
	}
	if len(r.Direction) > 0 {
		pds = append(pds, runtime.PointData{DataPointId: "direction", Value: string(r.Direction)})
	}
	return runtime.PublishData{Payload: runtime.Payload{Data: []runtime.TimeSeriesData{{
		Timestamp: runtime.FormatTimestamp(r.Timestamp),
		Values:    pds,
	}}}}
}
