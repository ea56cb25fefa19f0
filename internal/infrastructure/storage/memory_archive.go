package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/erp/invoicing/internal/domain/invoicing"
)

var _ invoicing.DocumentArchive = (*MemoryArchive)(nil)

// MemoryArchive keeps documents in process memory. It stands in for S3
// when no bucket is configured.
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// Object is one stored document
type Object struct {
	ContentType string
	Data        []byte
}

// NewMemoryArchive creates an empty archive
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string]Object)}
}

// Put stores a copy of data and returns a memory:// location
func (m *MemoryArchive) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{ContentType: contentType, Data: append([]byte(nil), data...)}
	return "memory://" + key, nil
}

// Get returns the object stored under key
func (m *MemoryArchive) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists the stored keys in order
func (m *MemoryArchive) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
