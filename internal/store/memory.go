package store

import (
	"context"
	"sort"
	"sync"

	"github.com/joseph-ayodele/finance-intake/internal/common"
)

type memObject struct {
	payload []byte
	indexes Indexes
}

// Memory is an ObjectStore kept in process memory. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]memObject
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]memObject)}
}

func (m *Memory) Get(_ context.Context, collection, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.data[collection][id]
	if !ok {
		return nil, common.NotFoundf("%s/%s", collection, id)
	}
	return append([]byte(nil), obj.payload...), nil
}

func (m *Memory) Put(_ context.Context, collection, id string, payload []byte, idx Indexes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.data[collection]
	if !ok {
		coll = make(map[string]memObject)
		m.data[collection] = coll
	}
	copied := make(Indexes, len(idx))
	for k, v := range idx {
		if v != "" {
			copied[k] = v
		}
	}
	coll[id] = memObject{payload: append([]byte(nil), payload...), indexes: copied}
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[collection], id)
	return nil
}

func (m *Memory) QueryByIndex(_ context.Context, collection, name, value string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(collection, func(o memObject) bool {
		return value != "" && o.indexes[name] == value
	}), nil
}

func (m *Memory) List(_ context.Context, collection string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(collection, func(memObject) bool { return true }), nil
}

func (m *Memory) collect(collection string, keep func(memObject) bool) [][]byte {
	coll := m.data[collection]
	ids := make([]string, 0, len(coll))
	for id, o := range coll {
		if keep(o) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, append([]byte(nil), coll[id].payload...))
	}
	return out
}

func (m *Memory) Close() error { return nil }
