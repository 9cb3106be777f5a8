package chain

import "sync"

// Store is the durable backing of committed chain state.
//
// Get returns nil, nil for a missing key. Apply writes every entry of a
// committed block atomically; a nil value deletes the key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Apply(writes map[string][]byte) error
	Close() error
}

// MemStore keeps committed state in memory. Used by tests and by the
// server when no state directory is configured.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemStore) Apply(writes map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range writes {
		if v == nil {
			delete(m.data, k)
			continue
		}
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *MemStore) Close() error { return nil }

// Len reports the number of committed keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
