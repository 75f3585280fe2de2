package storage

import (
	"encoding/json"
	"sort"
	"sync"
)

// StringMap is a string-to-string mapping document.
type StringMap struct {
	key    string
	marker DirtyMarker

	mu sync.RWMutex
	m  map[string]string
}

func NewStringMap(key string, marker DirtyMarker) *StringMap {
	return &StringMap{key: key, marker: marker, m: map[string]string{}}
}

func (sm *StringMap) Key() string { return sm.key }

func (sm *StringMap) MarshalDocument() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	// encoding/json sorts map keys, so equal maps produce equal bytes.
	return json.Marshal(sm.m)
}

func (sm *StringMap) UnmarshalDocument(data []byte) error {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = map[string]string{}
	}
	sm.mu.Lock()
	sm.m = m
	sm.mu.Unlock()
	return nil
}

func (sm *StringMap) Reset() {
	sm.mu.Lock()
	sm.m = map[string]string{}
	sm.mu.Unlock()
}

func (sm *StringMap) Get(k string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	v, ok := sm.m[k]
	return v, ok
}

// Set stores v under k and reports whether the mapping changed.
// It does not mark the document dirty; callers decide when to.
func (sm *StringMap) Set(k, v string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if old, ok := sm.m[k]; ok && old == v {
		return false
	}
	sm.m[k] = v
	return true
}

func (sm *StringMap) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}

// Values returns the values ordered by key.
func (sm *StringMap) Values() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	keys := make([]string, 0, len(sm.m))
	for k := range sm.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, sm.m[k])
	}
	return out
}

// Snapshot returns a copy of the mapping.
func (sm *StringMap) Snapshot() map[string]string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]string, len(sm.m))
	for k, v := range sm.m {
		out[k] = v
	}
	return out
}

// MarkDirty flags the document for the next flush.
func (sm *StringMap) MarkDirty() {
	if sm.marker != nil {
		sm.marker.MarkDirty(sm.key)
	}
}
