package generic

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"vfdgateway/pkg/runtime"
	"vfdgateway/pkg/storage"
)

const fileExt = ".json"

var ErrInvalidKey = errors.New("invalid resource key")

// Store persists devices as one JSON file each under <root>/<group>/<resource>.
type Store struct {
	Group    string
	Resource string
	client   *storage.FsClient
}

func NewStore(root, group, resource string) (*Store, error) {
	s := &Store{
		Group:    group,
		Resource: resource,
	}
	sg, ok := storage.StoreGroupFromString[group]
	if !ok {
		return nil, ErrInvalidKey
	}
	client := &storage.FsClient{}
	if err := client.Init(root, sg); err != nil {
		return nil, err
	}
	s.client = client

	return s, nil
}

// checkKey rejects ids that would leave the resource directory.
func checkKey(id string) error {
	if len(id) == 0 || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return ErrInvalidKey
	}
	return nil
}

func (s *Store) key(id string) string {
	return filepath.Join(s.Resource, id+fileExt)
}

func (s *Store) Create(obj *runtime.Device) (*runtime.Device, error) {
	if err := checkKey(obj.ID); err != nil {
		return nil, err
	}
	if _, err := s.client.Create(s.key(obj.ID), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// Update writes obj if its version is still the stored one; obj then carries the new version.
func (s *Store) Update(obj *runtime.Device) (*runtime.Device, error) {
	if err := checkKey(obj.ID); err != nil {
		return nil, err
	}
	if _, err := s.client.Update(s.key(obj.ID), obj.GetVersion(), obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Store) Delete(obj *runtime.Device) (*runtime.Device, error) {
	if err := checkKey(obj.ID); err != nil {
		return nil, err
	}
	if _, err := s.client.Delete(s.key(obj.ID), obj.GetVersion()); err != nil {
		return nil, err
	}
	return obj, nil
}

func (s *Store) Get(id string) (*runtime.Device, error) {
	if err := checkKey(id); err != nil {
		return nil, os.ErrNotExist
	}
	data, err := s.client.Get(s.key(id))
	if err != nil {
		return nil, err
	}
	d := &runtime.Device{}
	if err := json.Unmarshal(data.([]byte), d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadResource decodes every stored device, skipping files that do not decode.
func (s *Store) LoadResource() ([]*runtime.Device, error) {
	objs, err := s.client.List(s.Resource)
	if err != nil {
		return nil, err
	}

	var ret []*runtime.Device
	if files, ok := objs.([]*storage.FileInfo); ok {
		for _, file := range files {
			if filepath.Ext(file.Path) != fileExt {
				continue
			}
			func() {
				f, err := os.Open(file.Path)
				if err != nil {
					klog.V(2).InfoS("Failed to open", "file", file.Path, "resource", s.Resource, "err", err)
					return
				}
				defer f.Close()
				obj := &runtime.Device{}
				if err = json.NewDecoder(f).Decode(obj); err != nil {
					klog.V(3).InfoS("Failed to unmarshal", "file", file.Path, "resource", s.Resource, "err", err)
					return
				}
				ret = append(ret, obj)
			}()
		}
	}
	return ret, nil
}
