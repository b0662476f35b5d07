package store

import (
	"sort"
	"sync"

	"lector/tts"
)

// Memory is an in-process Store. Records vanish when the process exits.
type Memory struct {
	mu      sync.RWMutex
	records map[string]tts.Progress
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]tts.Progress)}
}

func (m *Memory) Load(key string) (tts.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[key]
	if !ok {
		return tts.Progress{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Save(key string, p tts.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = p
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error { return nil }
