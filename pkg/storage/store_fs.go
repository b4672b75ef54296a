package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/mod/sumdb"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"vfdgateway/pkg/apis"
	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/utils/fileutil"
	"vfdgateway/pkg/utils/randutil"
)

type FsClient struct {
	storePath string
}

var _ Storage = (*FsClient)(nil)

// Init prepares <root>/<group> and the resource directories of the group. An empty root means
// DefaultStorePath.
func (fc *FsClient) Init(root string, sg StoreGroup) error {
	if len(root) == 0 {
		root = DefaultStorePath
	}

	var dirs []string
	switch sg {
	case StoreGroupDevice:
		dirs = []string{
			Devices,
		}
	case StoreGroupGateway:
		dirs = []string{""}
	case StoreGroupReading:
		dirs = []string{
			Readings,
		}
	default:
		return fmt.Errorf("unsupported store group %d", sg)
	}

	fc.storePath = filepath.Join(root, StoreGroupToString[sg])

	for _, m := range dirs {
		p := filepath.Join(fc.storePath, m)

		_, err := os.Stat(p)
		if os.IsNotExist(err) {
			absPath, _ := filepath.Abs(p)
			klog.V(2).InfoS("Created", "path", absPath)
			if err = os.MkdirAll(p, 0711); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (fc *FsClient) Path() string {
	return fc.storePath
}

func (fc *FsClient) Create(key string, obj interface{}) (interface{}, error) {
	f, err := os.OpenFile(filepath.Join(fc.storePath, key), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0640)
	if err != nil {
		klog.V(2).InfoS("Failed to create file", "err", err)
		return nil, err
	}
	defer f.Close()
	err = json.NewEncoder(f).Encode(obj)
	if err != nil {
		klog.V(2).InfoS("Failed to encode", "err", err)
		return nil, err
	}
	return obj, nil
}

func (fc *FsClient) Get(key string) (interface{}, error) {
	data, err := os.ReadFile(filepath.Join(fc.storePath, key))
	if err != nil {
		if !os.IsNotExist(err) {
			klog.V(2).InfoS("Failed to read", "err", err)
		}
		return nil, err
	}
	return data, nil
}

func (fc *FsClient) List(key string) (interface{}, error) {
	var files []*FileInfo
	err := filepath.Walk(filepath.Join(fc.storePath, key), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, &FileInfo{
				Path:    path,
				ModTime: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		klog.V(2).InfoS("Failed to list", "err", err)
		return nil, err
	}
	return files, nil
}

func (fc *FsClient) open(key string, flag int) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(fc.storePath, key), flag, 0640)
	if err == nil {
		return f, nil
	}
	klog.V(2).InfoS("Failed to open file", "key", key, "err", err)
	switch {
	case os.IsNotExist(err):
		return nil, os.ErrNotExist
	case isEphemeralError(err):
		return nil, sumdb.ErrWriteConflict
	default:
		return nil, err
	}
}

func (fc *FsClient) Delete(key, version string) (interface{}, error) {
	// version is not required when cascading delete
	if len(version) == 0 {
		c, cancel := context.WithCancel(context.Background())
		wait.UntilWithContext(c, func(ctx context.Context) {
			if err := os.Remove(filepath.Join(fc.storePath, key)); !isEphemeralError(err) {
				if err != nil {
					klog.V(5).InfoS("Failed to remove file", "err", err)
				}
				cancel()
			}
		}, 0)
		return nil, nil
	}

	f, err := fc.open(key, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lock, err := fileutil.NewLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "err", err)
		return nil, sumdb.ErrWriteConflict
	}
	defer lock.Release()

	var target struct {
		runtime.ObjectMeta
	}
	err = json.NewDecoder(f).Decode(&target)
	if err != nil {
		klog.V(2).InfoS("Failed to unmarshal", "err", err)
		return nil, apis.ErrInternal
	}
	if target.Version != version {
		return nil, apis.ErrMismatch
	}

	err = os.Remove(filepath.Join(fc.storePath, key))
	if err != nil {
		klog.V(2).InfoS("Failed to remove", "err", err)
		return nil, apis.ErrInternal
	}
	return nil, nil
}

// Update replaces the object stored under key when version matches and gives obj a new version.
func (fc *FsClient) Update(key, version string, obj interface{}) (interface{}, error) {
	f, err := fc.open(key, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lock, err := fileutil.NewLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "err", err)
		return nil, sumdb.ErrWriteConflict
	}
	defer lock.Release()

	var old struct {
		runtime.ObjectMeta
	}
	err = json.NewDecoder(f).Decode(&old)
	if err != nil {
		klog.V(2).InfoS("Failed to unmarshal", "err", err)
		return nil, apis.ErrInternal
	}
	if version != old.Version {
		return nil, apis.ErrMismatch
	}
	ver, _ := strconv.ParseUint(version, 10, 64)
	if err = runtime.Touch(obj, strconv.FormatUint(ver+1+uint64(randutil.Intn(100)), 10)); err != nil {
		klog.V(2).InfoS("Failed to stamp version", "err", err)
		return nil, apis.ErrInternal
	}

	if err = f.Truncate(0); err != nil {
		klog.V(2).InfoS("Failed to truncate", "err", err)
		return nil, apis.ErrInternal
	}
	if _, err = f.Seek(0, 0); err != nil {
		klog.V(2).InfoS("Failed to seek", "err", err)
		return nil, apis.ErrInternal
	}
	err = json.NewEncoder(f).Encode(obj)
	if err != nil {
		klog.V(2).InfoS("Failed to marshal", "err", err)
		return nil, apis.ErrInternal
	}

	return obj, nil
}
