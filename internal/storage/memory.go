package storage

import (
	"context"
	"sync"

	"tracker/pkg/exception"
)

// Put is one recorded write.
type Put struct {
	Key   string
	Value []byte
}

// Memory keeps objects in process. Every Put is also appended to an ordered log.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	log     []Put
	closed  bool
	// Err, when set, is returned by every Put.
	Err error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return exception.ErrStorageClosed
	}
	if m.Err != nil {
		return m.Err
	}
	buf := append([]byte(nil), value...)
	m.objects[key] = buf
	m.log = append(m.log, Put{Key: key, Value: buf})
	return nil
}

// Get returns the current object stored at key.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.objects[key]
	return v, ok
}

// Puts returns every write in arrival order.
func (m *Memory) Puts() []Put {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Put, len(m.log))
	copy(out, m.log)
	return out
}

// Len is the number of distinct keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
