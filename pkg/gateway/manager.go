package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/storage"
	"vfdgateway/pkg/utils/randutil"
	"vfdgateway/pkg/utils/uuidutil"
)

const cpuSampleInterval = 200 * time.Millisecond

type Option func(*Manager)

type Manager struct {
	gatewayMeta *GatewayMeta
	stopCh      <-chan struct{}
}

func NewGatewayManager(stop <-chan struct{}, opts ...Option) *Manager {
	m := &Manager{
		gatewayMeta: &GatewayMeta{},
		stopCh:      stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init loads the gateway identity from root, creating it on first start.
func (m *Manager) Init(root string) error {
	client := &storage.FsClient{}
	if err := client.Init(root, storage.StoreGroupGateway); err != nil {
		return err
	}

	gd, err := client.Get(gateway)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		m.gatewayMeta = &GatewayMeta{
			Secret: "",
			ObjectMeta: runtime.ObjectMeta{
				Name:    gatewayName,
				ID:      uuidutil.UUID(),
				Version: strconv.FormatUint(randutil.Uint64n(), 10),
				ModTime: time.Now().UTC(),
			},
		}
		klog.V(3).InfoS("Gateway information not exist,been created automatically", "gatewayId", m.gatewayMeta.ID)
		if _, err := client.Create(gateway, m.gatewayMeta); err != nil {
			klog.V(2).InfoS("Failed to create gateway information", "err", err)
			return err
		}
		return nil
	}
	if err = json.NewDecoder(bytes.NewReader(gd.([]byte))).Decode(m.gatewayMeta); err != nil {
		klog.V(2).InfoS("Failed to unmarshal gateway information", "err", err)
		return err
	}
	return nil
}

func (m *Manager) GetGatewayMeta() (*GatewayMeta, error) {
	return m.gatewayMeta, nil
}

func percent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
}

func bytesString(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func (m *Manager) getGatewayCpu() ([]CpuUsageInfo, error) {
	percents, err := cpu.Percent(cpuSampleInterval, true)
	if err != nil {
		klog.V(2).InfoS("Failed to sample cpu", "err", err)
		return nil, err
	}
	model := ""
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		model = infos[0].ModelName
	}
	cpus := make([]CpuUsageInfo, 0, len(percents))
	for i, p := range percents {
		cpus = append(cpus, CpuUsageInfo{Index: i, ModelName: model, UsedPercent: percent(p)})
	}
	return cpus, nil
}

func (m *Manager) getGatewayMem() (*MemUsageInfo, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		klog.V(2).InfoS("Failed to read memory usage", "err", err)
		return nil, err
	}
	return &MemUsageInfo{
		Total:       bytesString(vm.Total),
		Used:        bytesString(vm.Used),
		UsedPercent: percent(vm.UsedPercent),
	}, nil
}

func (m *Manager) getGatewayDisk() ([]DiskUsageInfo, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		klog.V(2).InfoS("Failed to list partitions", "err", err)
		return nil, err
	}
	disks := make([]DiskUsageInfo, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			klog.V(4).InfoS("Skipped partition", "mountpoint", p.Mountpoint, "err", err)
			continue
		}
		disks = append(disks, DiskUsageInfo{
			Path:        usage.Path,
			Total:       bytesString(usage.Total),
			Used:        bytesString(usage.Used),
			UsedPercent: percent(usage.UsedPercent),
		})
	}
	return disks, nil
}
