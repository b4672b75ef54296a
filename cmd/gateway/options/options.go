package options

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"

	"vfdgateway/cmd/gateway/config"
	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/device"
	"vfdgateway/pkg/gateway"
	"vfdgateway/pkg/generic"
	baseoptions "vfdgateway/pkg/generic/options"
	"vfdgateway/pkg/planner"
	"vfdgateway/pkg/simulator"
	"vfdgateway/pkg/storage"
	"vfdgateway/pkg/transport"
	"vfdgateway/pkg/utils/uuidutil"
)

type MQTTOptions struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client-id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Options struct {
	Port             string          `json:"port"`
	Wait             metav1.Duration `json:"graceful-timeout"`
	StorePath        string          `json:"store-path"`
	PollInterval     metav1.Duration `json:"poll-interval"`
	IdleTimeout      metav1.Duration `json:"idle-timeout"`
	ReadingRetention metav1.Duration `json:"reading-retention"`
	Planner          planner.Options `json:"planner"`
	Simulate         bool            `json:"simulate"`
	MQTT             MQTTOptions     `json:"mqtt"`
	CertFile         string          `json:"cert-file"`
	KeyFile          string          `json:"key-file"`
	baseoptions.BaseOptions
}

const (
	_defaultPort             = "32200"
	_defaultWait             = 15 * time.Second
	_defaultPollInterval     = 1 * time.Second
	_defaultReadingRetention = 7 * 24 * time.Hour
	_defaultClientID         = "vfdgateway"
	_mqttConnectTimeout      = 10 * time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:             _defaultPort,
		Wait:             metav1.Duration{Duration: _defaultWait},
		StorePath:        storage.DefaultStorePath,
		PollInterval:     metav1.Duration{Duration: _defaultPollInterval},
		IdleTimeout:      metav1.Duration{Duration: connection.DefaultIdleTimeout},
		ReadingRetention: metav1.Duration{Duration: _defaultReadingRetention},
		Planner:          planner.DefaultOptions(),
		MQTT:             MQTTOptions{ClientID: _defaultClientID},
		BaseOptions:      baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	// refer to node port assignment https://rancher.com/docs/rancher/v2.x/en/installation/requirements/ports/#commonly-used-ports
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait.Duration, "graceful-timeout", o.Wait.Duration, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.StorePath, "store-path", o.StorePath, "Directory holding devices, readings and the gateway identity")
	fs.DurationVar(&o.PollInterval.Duration, "poll-interval", o.PollInterval.Duration, "Polling interval of devices without their own pollIntervalMs")
	fs.DurationVar(&o.IdleTimeout.Duration, "idle-timeout", o.IdleTimeout.Duration, "Idle time after which a pooled device session is reconnected")
	fs.DurationVar(&o.ReadingRetention.Duration, "reading-retention", o.ReadingRetention.Duration, "Age after which stored readings are pruned, 0 keeps them forever")
	fs.Uint16Var(&o.Planner.MaxGap, "planner-max-gap", o.Planner.MaxGap, "Largest run of unused registers a batch read may span")
	fs.Uint16Var(&o.Planner.MaxBatchSize, "planner-max-batch-size", o.Planner.MaxBatchSize, "Most registers one batch read may cover")
	fs.BoolVar(&o.Simulate, "simulate", o.Simulate, "Answer every device from an in-memory simulated drive instead of the network")
	fs.StringVar(&o.MQTT.Broker, "mqtt-broker", o.MQTT.Broker, "MQTT broker readings are published to, e.g. tcp://127.0.0.1:1883. Empty disables publishing")
	fs.StringVar(&o.MQTT.ClientID, "mqtt-client-id", o.MQTT.ClientID, "MQTT client id, empty picks a random one")
	fs.StringVar(&o.MQTT.Username, "mqtt-username", o.MQTT.Username, "MQTT username")
	fs.StringVar(&o.MQTT.Password, "mqtt-password", o.MQTT.Password, "MQTT password")
	fs.StringVar(&o.CertFile, "tls-cert-file", o.CertFile, "File containing the x509 certificate for HTTPS")
	fs.StringVar(&o.KeyFile, "tls-private-key-file", o.KeyFile, "File containing the x509 private key matching --tls-cert-file")
}

func (o *Options) dialer() transport.Dialer {
	if !o.Simulate {
		return transport.DefaultDialer
	}
	bus := simulator.NewBus()
	bus.Factory = func(ep transport.Endpoint) *simulator.Drive {
		d := simulator.NewDrive(1)
		d.ZeroFill = true
		d.Promiscuous = true
		return d
	}
	klog.InfoS("Simulation mode, devices are answered by in-memory drives")
	return bus
}

func (o *Options) mqttClient() (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.MQTT.Broker)
	clientID := o.MQTT.ClientID
	if len(clientID) == 0 {
		clientID = _defaultClientID + "-" + uuidutil.ShortUUID()
	}
	opts.SetClientID(clientID)
	opts.SetUsername(o.MQTT.Username)
	opts.SetPassword(o.MQTT.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(_mqttConnectTimeout)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		klog.V(2).InfoS("Connected to MQTT broker", "broker", o.MQTT.Broker)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		klog.V(1).InfoS("Lost MQTT connection", "broker", o.MQTT.Broker, "err", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(_mqttConnectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", o.MQTT.Broker, token.Error())
	}
	return client, nil
}

func (o *Options) Config(stopCh <-chan struct{}) (*config.Config, error) {
	c := &config.Config{CertFile: o.CertFile, KeyFile: o.KeyFile}

	gatewayMgr := gateway.NewGatewayManager(stopCh)
	if err := gatewayMgr.Init(o.StorePath); err != nil {
		return nil, err
	}
	meta, _ := gatewayMgr.GetGatewayMeta()

	store, err := generic.NewStore(o.StorePath, storage.StoreGroupToString[storage.StoreGroupDevice], storage.Devices)
	if err != nil {
		return nil, err
	}
	readings, err := generic.NewReadingStore(o.StorePath)
	if err != nil {
		return nil, err
	}

	adapters := generic.NewAdapters(o.dialer(), adapter.WithPlanner(o.Planner))
	pool := connection.NewPool(adapters, connection.WithIdleTimeout(o.IdleTimeout.Duration))
	go pool.Run(stopCh)

	opts := []device.Option{
		device.WithPollInterval(o.PollInterval.Duration),
		device.WithRetention(o.ReadingRetention.Duration),
	}
	if len(o.MQTT.Broker) > 0 {
		client, err := o.mqttClient()
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			device.WithPublisher(device.NewMQTTPublisher(client, meta.ID)),
			device.WithCloser("mqtt", func(ctx context.Context) error {
				client.Disconnect(2000)
				return nil
			}),
		)
	}

	deviceMgr := device.NewManager(store, readings, adapters, pool, meta, stopCh, opts...)
	deviceMgr.Init()

	c.DeviceMgr = deviceMgr
	c.GatewayMgr = gatewayMgr
	return c, nil
}
