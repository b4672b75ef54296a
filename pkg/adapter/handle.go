package adapter

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/atomic"

	"vfdgateway/pkg/runtime/constant"
	"vfdgateway/pkg/utils/uuidutil"
)

// ConnectionHandle identifies a session held by an adapter.
type ConnectionHandle struct {
	ID        string
	Protocol  constant.Protocol
	Metadata  map[string]string
	CreatedAt time.Time

	connected    atomic.Bool
	lastActivity atomic.Int64
}

func newHandle(p constant.Protocol, metadata map[string]string) *ConnectionHandle {
	h := &ConnectionHandle{
		ID:        uuidutil.UUID(),
		Protocol:  p,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	h.connected.Store(true)
	h.Touch()
	return h
}

func (h *ConnectionHandle) IsConnected() bool {
	return h.connected.Load()
}

func (h *ConnectionHandle) LastActivity() time.Time {
	return time.Unix(0, h.lastActivity.Load()).UTC()
}

// Touch stamps activity; the stamp never moves backwards.
func (h *ConnectionHandle) Touch() {
	now := time.Now().UnixNano()
	for {
		prev := h.lastActivity.Load()
		if now <= prev {
			return
		}
		if h.lastActivity.CAS(prev, now) {
			return
		}
	}
}

func (h *ConnectionHandle) markDisconnected() {
	h.connected.Store(false)
}

func (h *ConnectionHandle) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string            `json:"id"`
		Protocol     constant.Protocol `json:"protocol"`
		IsConnected  bool              `json:"isConnected"`
		LastActivity time.Time         `json:"lastActivity"`
		CreatedAt    time.Time         `json:"createdAt"`
		Metadata     map[string]string `json:"metadata,omitempty"`
	}{h.ID, h.Protocol, h.IsConnected(), h.LastActivity(), h.CreatedAt, h.Metadata})
}

type entry struct {
	handle  *ConnectionHandle
	session Session
}

type handleTable struct {
	mux     sync.RWMutex
	entries map[string]*entry
}

func newHandleTable() *handleTable {
	return &handleTable{entries: make(map[string]*entry)}
}

func (t *handleTable) add(h *ConnectionHandle, s Session) {
	t.mux.Lock()
	defer t.mux.Unlock()
	t.entries[h.ID] = &entry{handle: h, session: s}
}

func (t *handleTable) get(id string) (*entry, bool) {
	t.mux.RLock()
	defer t.mux.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

func (t *handleTable) remove(id string) (*entry, bool) {
	t.mux.Lock()
	defer t.mux.Unlock()
	e, ok := t.entries[id]
	delete(t.entries, id)
	return e, ok
}

func (t *handleTable) len() int {
	t.mux.RLock()
	defer t.mux.RUnlock()
	return len(t.entries)
}
