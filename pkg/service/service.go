// Package service composes adapters, the register map registry and persistence into device level
// operations: commands, parameter reads and connection tests.
package service

import (
	"errors"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"

	"vfdgateway/pkg/runtime"
)

var (
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnsupportedCommand = errors.New("command not supported by brand")
	ErrMissingValue       = errors.New("command needs a value")
)

// DeviceRepository is the device persistence the services need.
type DeviceRepository interface {
	FindByID(id string) (*runtime.Device, error)
	UpdateConnectionStatus(id string, status runtime.ConnectionStatus, seen time.Time) error
}

type ReadingRepository interface {
	Save(r *runtime.Reading) error
	Query(deviceID string, from, to time.Time, limit int) ([]*runtime.Reading, error)
	Statistics(deviceID string, from, to time.Time) (*runtime.ReadingStatistics, error)
}

// Publisher forwards captured readings to consumers outside the gateway.
type Publisher interface {
	Publish(d *runtime.Device, r *runtime.Reading) error
}

func findDevice(devices DeviceRepository, id string) (*runtime.Device, error) {
	d, err := devices.FindByID(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, pkgerrors.Wrapf(os.ErrNotExist, "device %s", id)
		}
		return nil, err
	}
	return d, nil
}
