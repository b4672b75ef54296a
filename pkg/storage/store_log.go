package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"vfdgateway/pkg/utils/fileutil"
)

const (
	partitionLayout = "20060102"
	partitionExt    = ".jsonl"
	maxLineSize     = 1 << 20
)

var _ Log = (*FsClient)(nil)

func partition(t time.Time) string {
	return t.UTC().Format(partitionLayout) + partitionExt
}

// Append writes obj as one JSON line into the day partition of at under key.
func (fc *FsClient) Append(key string, at time.Time, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	dir := filepath.Join(fc.storePath, key)
	if err := os.MkdirAll(dir, 0711); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, partition(at)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		klog.V(2).InfoS("Failed to open partition", "key", key, "err", err)
		return err
	}
	defer f.Close()

	lock, err := fileutil.WaitLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "err", err)
		return err
	}
	defer lock.Release()

	_, err = f.Write(append(data, '\n'))
	return err
}

type dayFile struct {
	path string
	day  time.Time
}

func (fc *FsClient) partitions(key string) ([]dayFile, error) {
	dir := filepath.Join(fc.storePath, key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]dayFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, partitionExt) {
			continue
		}
		day, err := time.Parse(partitionLayout, strings.TrimSuffix(name, partitionExt))
		if err != nil {
			klog.V(4).InfoS("Skipped foreign file", "path", filepath.Join(dir, name))
			continue
		}
		files = append(files, dayFile{path: filepath.Join(dir, name), day: day})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].day.Before(files[j].day) })
	return files, nil
}

// Scan feeds fn every line of the partitions of key that overlap [from, to], oldest partition
// first. Lines within a partition come in append order.
func (fc *FsClient) Scan(key string, from, to time.Time, fn func(line []byte) error) error {
	files, err := fc.partitions(key)
	if err != nil {
		return err
	}
	first := from.UTC().Truncate(24 * time.Hour)
	for _, df := range files {
		if df.day.Before(first) || df.day.After(to.UTC()) {
			continue
		}
		if err := scanFile(df.path, fn); err != nil {
			return err
		}
	}
	return nil
}

func scanFile(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Prune removes the partitions of key whose whole day lies before before.
func (fc *FsClient) Prune(key string, before time.Time) (int, error) {
	files, err := fc.partitions(key)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, df := range files {
		if !df.day.Add(24 * time.Hour).After(before) {
			if err := os.Remove(df.path); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Keys lists the keys below resource, e.g. one per device under Readings.
func (fc *FsClient) Keys(resource string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fc.storePath, resource))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, filepath.Join(resource, e.Name()))
		}
	}
	return keys, nil
}
