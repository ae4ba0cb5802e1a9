package kv

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory 进程内实现，单进程部署和测试使用
type Memory struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]map[string]int64
	lists    map[string][]float64
}

func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		counters: make(map[string]map[string]int64),
		lists:    make(map[string][]float64),
	}
}

func (m *Memory) Get(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = data
	return nil
}

func (m *Memory) Update(ctx context.Context, key string, ptr any, fn func(found bool) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	resetValue(ptr)
	raw, found := m.values[key]
	if found {
		if err := json.Unmarshal(raw, ptr); err != nil {
			return err
		}
	}
	if err := fn(found); err != nil {
		return err
	}
	data, err := json.Marshal(ptr)
	if err != nil {
		return err
	}
	m.values[key] = data
	return nil
}

func (m *Memory) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.counters, k)
		delete(m.lists, k)
	}
	return nil
}

func (m *Memory) IncrBy(ctx context.Context, key, field string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters[key] == nil {
		m.counters[key] = make(map[string]int64)
	}
	m.counters[key][field] += delta
	return nil
}

func (m *Memory) Counters(ctx context.Context, key string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counters[key]))
	for k, v := range m.counters[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) PushCapped(ctx context.Context, key string, value float64, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]float64{value}, m.lists[key]...)
	if max > 0 && len(list) > max {
		list = list[:max]
	}
	m.lists[key] = list
	return nil
}

func (m *Memory) List(ctx context.Context, key string) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.lists[key]...), nil
}
