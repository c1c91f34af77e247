package target

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// memoryObject holds a single object in the in-memory store.
type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// MemoryTarget is an in-memory implementation of Target, intended for testing.
type MemoryTarget struct {
	name    string
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

// NewMemoryTarget creates a new in-memory Target with the given name.
func NewMemoryTarget(name string) *MemoryTarget {
	return &MemoryTarget{
		name:    name,
		objects: make(map[string]*memoryObject),
	}
}

func (m *MemoryTarget) Name() string {
	return m.name
}

func newMemoryObject(data []byte, opts PutOptions) *memoryObject {
	buf := make([]byte, len(data))
	copy(buf, data)

	meta := make(map[string]string, len(opts.Metadata))
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	return &memoryObject{data: buf, contentType: opts.ContentType, metadata: meta}
}

func (m *MemoryTarget) Put(_ context.Context, key string, data []byte, opts PutOptions) error {
	obj := newMemoryObject(data, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = obj
	return nil
}

func (m *MemoryTarget) PutIfAbsent(_ context.Context, key string, data []byte, opts PutOptions) error {
	obj := newMemoryObject(data, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; exists {
		return ErrExists
	}
	m.objects[key] = obj
	return nil
}

func (m *MemoryTarget) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy so the caller cannot mutate the store.
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

func (m *MemoryTarget) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryTarget) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

func (m *MemoryTarget) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ContentType returns the content type recorded for key.
func (m *MemoryTarget) ContentType(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if obj, ok := m.objects[key]; ok {
		return obj.contentType
	}
	return ""
}

// Len returns the number of stored objects.
func (m *MemoryTarget) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
