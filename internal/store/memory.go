package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

type memoryValue struct {
	kind string
	str  string
	num  int64
}

// Memory is an in-process KV. The zero value is not usable; call NewMemory.
type Memory struct {
	mu     sync.RWMutex
	values map[string]memoryValue
}

var _ KV = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]memoryValue)}
}

func (m *Memory) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", false, nil
	}
	if v.kind != kindString {
		return "", false, wrongKind(key, kindString, v.kind)
	}
	return v.str, true, nil
}

func (m *Memory) SetString(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memoryValue{kind: kindString, str: value}
	return nil
}

func (m *Memory) GetInt64(_ context.Context, key string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return 0, false, nil
	}
	if v.kind != kindInt {
		return 0, false, wrongKind(key, kindInt, v.kind)
	}
	return v.num, true, nil
}

func (m *Memory) SetInt64(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memoryValue{kind: kindInt, num: value}
	return nil
}

// Dump returns every entry ordered by key.
func (m *Memory) Dump(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.values))
	for k, v := range m.values {
		e := Entry{Key: k, Kind: v.kind, Value: v.str}
		if v.kind == kindInt {
			e.Value = strconv.FormatInt(v.num, 10)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
