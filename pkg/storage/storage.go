package storage

import (
	"time"
)

type StoreGroup byte

const (
	StoreGroupDevice StoreGroup = iota
	StoreGroupGateway
	StoreGroupReading
)

var (
	StoreGroupToString = map[StoreGroup]string{
		StoreGroupDevice:  "device",
		StoreGroupGateway: "gateway",
		StoreGroupReading: "reading",
	}
	StoreGroupFromString = map[string]StoreGroup{
		"device":  StoreGroupDevice,
		"gateway": StoreGroupGateway,
		"reading": StoreGroupReading,
	}
)

// resources
const (
	// device
	Devices = "devices"
	// reading
	Readings = "readings"
)

type Getter interface {
	Get(key string) (interface{}, error)
}

type Lister interface {
	List(key string) (interface{}, error)
}

type Creater interface {
	Create(key string, obj interface{}) (interface{}, error)
}

type Updater interface {
	Update(key, version string, obj interface{}) (interface{}, error)
}

type Deleter interface {
	Delete(key, version string) (interface{}, error)
}

type Storage interface {
	Getter
	Lister
	Creater
	Updater
	Deleter
}

// Log is an append-only, time partitioned record store.
type Log interface {
	Append(key string, at time.Time, obj interface{}) error
	Scan(key string, from, to time.Time, fn func(line []byte) error) error
	Prune(key string, before time.Time) (int, error)
	Keys(resource string) ([]string, error)
}

type FileInfo struct {
	Path    string
	ModTime time.Time
}
