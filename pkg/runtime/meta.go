package runtime

import (
	"errors"
	"time"
)

var ErrNotObject = errors.New("object does not carry object meta")

// Object is implemented by every stored resource through its embedded ObjectMeta.
type Object interface {
	GetName() string
	GetID() string
	GetVersion() string
	SetVersion(string)
	GetModTime() time.Time
	SetModTime(time.Time)
}

type ObjectMeta struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Version string    `json:"eTag"`
	ModTime time.Time `json:"modTime"`
}

func (meta *ObjectMeta) GetName() string              { return meta.Name }
func (meta *ObjectMeta) GetID() string                { return meta.ID }
func (meta *ObjectMeta) GetVersion() string           { return meta.Version }
func (meta *ObjectMeta) SetVersion(version string)    { meta.Version = version }
func (meta *ObjectMeta) GetModTime() time.Time        { return meta.ModTime }
func (meta *ObjectMeta) SetModTime(modTime time.Time) { meta.ModTime = modTime }

// Touch stamps obj with a new version and the current UTC time.
func Touch(obj interface{}, version string) error {
	o, ok := obj.(Object)
	if !ok {
		return ErrNotObject
	}
	o.SetVersion(version)
	o.SetModTime(time.Now().UTC())
	return nil
}
