package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/adapter"
	"vfdgateway/pkg/apis"
	"vfdgateway/pkg/apis/response"
	"vfdgateway/pkg/connection"
	"vfdgateway/pkg/gateway"
	"vfdgateway/pkg/generic"
	"vfdgateway/pkg/registry"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/service"
	"vfdgateway/pkg/utils/randutil"
	"vfdgateway/pkg/utils/uuidutil"
)

type Option func(*Manager)

func WithPublisher(p service.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithPollInterval sets the interval of devices without their own pollIntervalMs.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithRetention prunes readings older than d; zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) { m.retention = d }
}

func WithHeartBeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartBeatInterval = d }
}

func WithRegistry(r *registry.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

func WithCloser(label string, closer func(context.Context) error) Option {
	return func(m *Manager) {
		m.closers = append(m.closers, runtime.LabeledCloser{Label: label, Closer: closer})
	}
}

type statusChange struct {
	id     string
	status runtime.DeviceStatusCh
}

type Manager struct {
	gatewayMeta       *gateway.GatewayMeta
	mu                *sync.Mutex
	devices           *sync.Map
	heartBeatDevices  *sync.Map
	pollers           map[string]chan struct{}
	store             *generic.Store
	readings          *generic.ReadingStore
	registry          *registry.Registry
	adapters          *generic.Adapters
	pool              *connection.Pool
	publisher         service.Publisher
	reader            *service.ReaderService
	commands          *service.CommandService
	tester            *service.ConnectionTestService
	pollInterval      time.Duration
	heartBeatInterval time.Duration
	retention         time.Duration
	stopCh            <-chan struct{}
	deviceStatusCh    chan statusChange
	closers           []runtime.LabeledCloser
}

func NewManager(store *generic.Store, readings *generic.ReadingStore, adapters *generic.Adapters, pool *connection.Pool,
	gatewayMeta *gateway.GatewayMeta, stop <-chan struct{}, opts ...Option) *Manager {
	m := &Manager{
		gatewayMeta:       gatewayMeta,
		mu:                &sync.Mutex{},
		devices:           &sync.Map{},
		heartBeatDevices:  &sync.Map{},
		pollers:           make(map[string]chan struct{}),
		store:             store,
		readings:          readings,
		registry:          registry.Default(),
		adapters:          adapters,
		pool:              pool,
		pollInterval:      defaultPollInterval,
		heartBeatInterval: heartBeatTimeInterval,
		stopCh:            stop,
		deviceStatusCh:    make(chan statusChange),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reader = service.NewReaderService(m, readings, m.registry, pool, m.publisher)
	m.commands = service.NewCommandService(m, m.registry, pool)
	m.tester = service.NewConnectionTestService(m, adapters, pool)
	return m
}

// Init loads the stored devices, starts polling them and the background loops.
func (m *Manager) Init() {
	devices, err := m.store.LoadResource()
	if err != nil {
		klog.V(1).InfoS("Failed to load devices", "err", err)
	}
	for _, d := range devices {
		d.ConnectionStatus = runtime.ConnectionStatusUnknown
		d.LastSeen = nil
		d.CollectStatus = runtime.CollectStatusToString[runtime.Stopped]
		m.devices.Store(d.ID, d)
		m.startCollect(d)
	}

	go m.heartBeatDetection()
	go m.listeningDeviceStatusCh()
	if m.retention > 0 {
		go wait.Until(m.pruneReadings, pruneInterval, m.stopCh)
	}
}

// validate runs the protocol independent checks and the adapter's configuration validation,
// reporting every violation at once.
func (m *Manager) validate(d *runtime.Device) error {
	allErrs := runtime.ValidateDevice(d)
	if _, ok := constant.ProtocolToString[d.Protocol]; !ok {
		return response.ErrProtocolUnSupported(d.Protocol.String())
	}
	if _, err := m.registry.Info(d.Brand); err != nil {
		return response.ErrBrandUnSupported(d.Brand.String())
	}
	if len(d.Topic) > 0 && strings.ContainsAny(d.Topic, "#+") {
		allErrs = append(allErrs, field.Invalid(field.NewPath("topic"), d.Topic, "must not contain wildcards"))
	}
	violations := make([]string, 0, len(allErrs))
	for _, err := range allErrs {
		violations = append(violations, err.Error())
	}
	if d.Configuration != nil {
		if vr := m.adapters.Get(d.Protocol).ValidateConfiguration(d.Configuration); !vr.Valid {
			for _, e := range vr.Errors {
				violations = append(violations, "configuration."+e)
			}
		}
	}
	if len(violations) > 0 {
		return response.ErrInvalidDevice(violations...)
	}
	return nil
}

func (m *Manager) CreateDevice(d *runtime.Device) (*runtime.Device, error) {
	if err := m.validate(d); err != nil {
		klog.V(2).InfoS("Failed to validate device", "err", err)
		return nil, err
	}
	d.ObjectMeta = runtime.ObjectMeta{
		Name:    d.Name,
		ID:      uuidutil.UUID(),
		Version: strconv.FormatUint(randutil.Uint64n(), 10),
		ModTime: time.Now().UTC(),
	}
	d.ConnectionStatus = runtime.ConnectionStatusUnknown
	d.LastSeen = nil
	d.CollectStatus = runtime.CollectStatusToString[runtime.Stopped]
	if len(d.Topic) == 0 && m.gatewayMeta != nil {
		d.Topic = fmt.Sprintf("data/%s/v1/%s", m.gatewayMeta.ID, d.ID)
	}

	if _, err := m.store.Create(d); err != nil {
		klog.V(2).InfoS("Failed to store device", "err", err)
		return nil, err
	}
	m.devices.Store(d.ID, d.DeepCopy())
	klog.V(2).InfoS("Created device", "deviceId", d.ID, "brand", d.Brand, "protocol", d.Protocol)

	m.startCollect(d)
	return m.GetDeviceById(d.ID)
}

func (m *Manager) DeleteDevice(id string, version string) (*runtime.Device, error) {
	d, err := m.GetDeviceById(id)
	if err != nil {
		return nil, err
	}
	if d.GetVersion() != version {
		return nil, apis.ErrMismatch
	}
	if _, err := m.store.Delete(d); err != nil {
		klog.V(2).InfoS("Failed to delete device", "deviceId", id, "err", err)
		return nil, err
	}
	m.cancelCollect(id)
	m.devices.Delete(id)
	if err := m.pool.Evict(context.Background(), id); err != nil {
		klog.V(3).InfoS("Failed to close session", "deviceId", id, "err", err)
	}
	klog.V(2).InfoS("Deleted device", "deviceId", id)
	return d, nil
}

// UpdateDeviceById replaces the user editable fields of a device. Identity and runtime status
// are kept; polling restarts so a new configuration or interval takes effect.
func (m *Manager) UpdateDeviceById(id string, version string, newObj *runtime.Device) (*runtime.Device, error) {
	old, err := m.GetDeviceById(id)
	if err != nil {
		return nil, err
	}
	if version != old.GetVersion() {
		return nil, apis.ErrMismatch
	}
	if err := m.validate(newObj); err != nil {
		return nil, err
	}

	updated := newObj.DeepCopy()
	updated.ObjectMeta = runtime.ObjectMeta{
		Name:    newObj.Name,
		ID:      old.ID,
		Version: old.Version,
		ModTime: time.Now().UTC(),
	}
	updated.ConnectionStatus = old.ConnectionStatus
	updated.LastSeen = old.LastSeen
	updated.CollectStatus = old.CollectStatus
	if _, err := m.store.Update(updated); err != nil {
		klog.V(2).InfoS("Failed to update device", "deviceId", id, "err", err)
		return nil, err
	}
	m.devices.Store(id, updated.DeepCopy())

	if old.CollectStatus != runtime.CollectStatusToString[runtime.Stopped] {
		m.cancelCollect(id)
		m.startCollect(updated)
	}
	return m.GetDeviceById(id)
}

// ListDevices returns the devices matching filter, newest first.
func (m *Manager) ListDevices(filter *runtime.DeviceFilter) ([]*runtime.Device, error) {
	rds := make([]*runtime.Device, 0)
	predicates := runtime.ParseTypeFilter(filter)

	// descend
	byModTime := func(d1, d2 *runtime.Device) bool { return d1.GetModTime().Before(d2.GetModTime()) }
	sorter := runtime.ByDevice(byModTime)

	m.devices.Range(func(key, value interface{}) bool {
		v := value.(*runtime.Device)
		for _, p := range predicates {
			if !p(v) {
				return true
			}
		}
		rds = sorter.Insert(rds, v.DeepCopy())
		return true
	})
	return rds, nil
}

func (m *Manager) GetDeviceById(id string) (*runtime.Device, error) {
	d, isExist := m.devices.Load(id)
	if !isExist {
		return nil, os.ErrNotExist
	}
	return d.(*runtime.Device).DeepCopy(), nil
}

// FindByID serves the device lookups of the services.
func (m *Manager) FindByID(id string) (*runtime.Device, error) {
	return m.GetDeviceById(id)
}

// UpdateConnectionStatus records the last observed link state. It lives in memory only so that
// polling does not churn the stored version.
func (m *Manager) UpdateConnectionStatus(id string, status runtime.ConnectionStatus, seen time.Time) error {
	return m.mutate(id, func(d *runtime.Device) {
		d.ConnectionStatus = status
		if status == runtime.ConnectionStatusConnected {
			d.LastSeen = &seen
		}
	})
}

func (m *Manager) setCollectStatus(id string, cs runtime.CollectStatus) {
	_ = m.mutate(id, func(d *runtime.Device) {
		d.CollectStatus = runtime.CollectStatusToString[cs]
	})
}

func (m *Manager) mutate(id string, fn func(d *runtime.Device)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.devices.Load(id)
	if !ok {
		return os.ErrNotExist
	}
	d := v.(*runtime.Device).DeepCopy()
	fn(d)
	m.devices.Store(id, d)
	return nil
}

func (m *Manager) SwitchDeviceStatus(id string, status string) error {
	if _, err := m.GetDeviceById(id); err != nil {
		klog.V(2).InfoS("Failed to find device", "deviceId", id)
		return err
	}
	sc, ok := runtime.StringToDeviceStatusCh[status]
	if !ok {
		klog.V(2).InfoS("Unsupported device status", "status", status)
		return response.ErrDeviceOperatorUnSupported(status)
	}
	select {
	case m.deviceStatusCh <- statusChange{id: id, status: sc}:
		return nil
	case <-m.stopCh:
		return constant.ErrDeviceServerClosed
	}
}

func (m *Manager) ExecuteCommand(ctx context.Context, id string, req service.CommandRequest) (*runtime.CommandResult, error) {
	return m.commands.Execute(ctx, id, req)
}

func (m *Manager) ReadDevice(ctx context.Context, id string, opts service.ReadOptions) (*runtime.Reading, error) {
	return m.reader.Read(ctx, id, opts)
}

func (m *Manager) Readings(id string, from, to time.Time, limit int) ([]*runtime.Reading, error) {
	return m.reader.History(id, from, to, limit)
}

func (m *Manager) ReadingStatistics(id string, from, to time.Time) (*runtime.ReadingStatistics, error) {
	return m.reader.Statistics(id, from, to)
}

func (m *Manager) TestDevice(ctx context.Context, id string) (*runtime.ConnectionTestResult, error) {
	return m.tester.TestDevice(ctx, id)
}

func (m *Manager) TestConfiguration(ctx context.Context, p constant.Protocol, cfg runtime.Configuration) (*runtime.ConnectionTestResult, error) {
	return m.tester.TestConfiguration(ctx, p, cfg)
}

// ProtocolInfo describes one supported protocol for clients building a device form.
type ProtocolInfo struct {
	Protocol             constant.Protocol     `json:"protocol"`
	DefaultConfiguration runtime.Configuration `json:"defaultConfiguration"`
}

func (m *Manager) Protocols() []ProtocolInfo {
	out := make([]ProtocolInfo, 0, len(constant.Protocols()))
	for _, p := range constant.Protocols() {
		out = append(out, ProtocolInfo{Protocol: p, DefaultConfiguration: m.adapters.Get(p).DefaultConfiguration()})
	}
	return out
}

func (m *Manager) ProtocolSchema(p constant.Protocol) *adapter.Schema {
	return m.adapters.Get(p).ConfigurationSchema()
}

// Brands lists the brand tables without their mappings.
func (m *Manager) Brands() []*registry.BrandMap {
	out := make([]*registry.BrandMap, 0)
	for _, b := range m.registry.Brands() {
		info, err := m.registry.Info(b)
		if err != nil {
			continue
		}
		info.Mappings = nil
		out = append(out, info)
	}
	return out
}

func (m *Manager) BrandMappings(brand constant.Brand, opts service.ReadOptions) ([]*runtime.RegisterMapping, error) {
	switch {
	case opts.CriticalOnly:
		return m.registry.CriticalMappings(brand)
	case opts.Category != nil:
		return m.registry.MappingsByCategory(brand, *opts.Category)
	default:
		return m.registry.MappingsForBrand(brand)
	}
}

// startCollect polls d, or parks it for the heartbeat when it cannot be reached.
func (m *Manager) startCollect(d *runtime.Device) {
	if err := m.readyCollect(d); err != nil {
		if errors.Is(err, constant.ErrConnectDevice) {
			m.heartBeatDevices.Store(d.ID, struct{}{})
		} else {
			klog.V(2).InfoS("Failed to start process collect device data", "deviceId", d.ID, "err", err)
		}
	}
}

func (m *Manager) readyCollect(d *runtime.Device) error {
	mappings, err := m.registry.ReadableMappings(d.Brand)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		m.setCollectStatus(d.ID, runtime.EmptyVariable)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	lease, err := m.pool.Lease(ctx, d)
	if err != nil {
		m.setCollectStatus(d.ID, runtime.Unconnected)
		_ = m.UpdateConnectionStatus(d.ID, runtime.ConnectionStatusError, time.Now().UTC())
		klog.V(2).InfoS("Failed to connect device", "deviceId", d.ID, "err", err)
		return fmt.Errorf("%w: %v", constant.ErrConnectDevice, err)
	}
	lease.Release()

	m.mu.Lock()
	if _, ok := m.pollers[d.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	m.pollers[d.ID] = stop
	m.mu.Unlock()

	m.setCollectStatus(d.ID, runtime.Collecting)
	interval := d.PollInterval(m.pollInterval)
	klog.V(2).InfoS("Succeed to collect data", "deviceId", d.ID, "interval", interval)
	go m.poll(d.ID, interval, stop)
	return nil
}

func (m *Manager) poll(id string, interval time.Duration, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
		case <-m.stopCh:
		}
		cancel()
	}()
	wait.UntilWithContext(ctx, func(ctx context.Context) { m.collectOnce(ctx, id) }, interval)
	klog.V(2).InfoS("Stopped to collect data", "deviceId", id)
}

func (m *Manager) collectOnce(ctx context.Context, id string) {
	r, err := m.reader.Read(ctx, id, service.ReadOptions{})
	if ctx.Err() != nil {
		return
	}
	switch {
	case err == nil && len(r.Values()) > 0:
		m.setCollectStatus(id, runtime.Collecting)
	case err == nil:
		m.setCollectStatus(id, runtime.CollectingError)
	case errors.Is(err, os.ErrNotExist), errors.Is(err, context.Canceled):
	default:
		klog.V(3).InfoS("Failed to collect data", "deviceId", id, "err", err)
		m.setCollectStatus(id, runtime.CollectingError)
	}
}

func (m *Manager) cancelCollect(id string) {
	m.mu.Lock()
	if stop, ok := m.pollers[id]; ok {
		close(stop)
		delete(m.pollers, id)
	}
	m.mu.Unlock()
	m.heartBeatDevices.Delete(id)
	m.setCollectStatus(id, runtime.Stopped)
}

func (m *Manager) heartBeatDetection() {
	tick := time.NewTicker(m.heartBeatInterval)
	defer tick.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-tick.C:
			m.heartBeatDevices.Range(func(key, _ any) bool {
				id := key.(string)
				d, err := m.GetDeviceById(id)
				if err != nil {
					m.heartBeatDevices.Delete(id)
					return true
				}
				if err := m.readyCollect(d); err == nil {
					klog.V(2).InfoS("Device reachable again", "deviceId", id)
					m.heartBeatDevices.Delete(id)
				}
				return true
			})
		}
	}
}

func (m *Manager) listeningDeviceStatusCh() {
	for {
		select {
		case <-m.stopCh:
			return
		case sc, ok := <-m.deviceStatusCh:
			if !ok {
				return
			}
			d, err := m.GetDeviceById(sc.id)
			if err != nil {
				klog.V(2).InfoS("Failed to find device", "deviceId", sc.id)
				continue
			}
			m.switchDeviceStatus(d, sc.status)
		}
	}
}

func (m *Manager) switchDeviceStatus(d *runtime.Device, status runtime.DeviceStatusCh) {
	switch status {
	case runtime.Start:
		if runtime.StringToCollectStatus[d.CollectStatus] == runtime.Collecting {
			return
		}
		m.cancelCollect(d.ID)
		m.startCollect(d)
	case runtime.Restart:
		m.cancelCollect(d.ID)
		m.startCollect(d)
	case runtime.Stop:
		m.cancelCollect(d.ID)
	}
}

func (m *Manager) pruneReadings() {
	n, err := m.readings.Prune(m.retention)
	if err != nil {
		klog.V(2).InfoS("Failed to prune readings", "err", err)
		return
	}
	if n > 0 {
		klog.V(3).InfoS("Pruned readings", "partitions", n, "retention", m.retention)
	}
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for id, stop := range m.pollers {
		close(stop)
		delete(m.pollers, id)
	}
	m.mu.Unlock()

	m.pool.Close(ctx)
	var errs []string
	for i := len(m.closers); i > 0; i-- {
		lc := m.closers[i-1]
		if err := lc.Closer(ctx); err != nil {
			klog.V(2).InfoS("Failed to stopped Dependencies service", "service", lc.Label)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to shutdown device manager: [%s]", strings.Join(errs, ","))
	}
	return nil
}
