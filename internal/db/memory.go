package db

import (
	"bytes"
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store. Nothing survives a restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[namespace][key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bucket(namespace)[key] = bytes.Clone(value)
	return nil
}

func (m *Memory) SetIfAbsent(_ context.Context, namespace, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.bucket(namespace)
	if _, ok := b[key]; ok {
		return false, nil
	}
	b[key] = bytes.Clone(value)
	return true, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, namespace, key string, old, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[namespace][key]
	if !ok || !bytes.Equal(cur, old) {
		return false, nil
	}
	m.data[namespace][key] = bytes.Clone(value)
	return true, nil
}

func (m *Memory) ListKeys(_ context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data[namespace]))
	for k := range m.data[namespace] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Delete(_ context.Context, namespace, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[namespace][key]; !ok {
		return false, nil
	}
	delete(m.data[namespace], key)
	return true, nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) bucket(namespace string) map[string][]byte {
	b, ok := m.data[namespace]
	if !ok {
		b = make(map[string][]byte)
		m.data[namespace] = b
	}
	return b
}
