package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/frontdesk/models"
)

type memDoc struct {
	body []byte
	seq  uint64
}

// Memory is an in-process Collection used for development and tests.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]memDoc
	seq  uint64
}

// NewMemory returns an empty in-memory collection store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]memDoc)}
}

func (m *Memory) Get(_ context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(d.body), nil
}

func (m *Memory) Put(_ context.Context, collection, id string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(collection, id, body)
	return nil
}

func (m *Memory) putLocked(collection, id string, body []byte) {
	coll, ok := m.docs[collection]
	if !ok {
		coll = make(map[string]memDoc)
		m.docs[collection] = coll
	}
	d, exists := coll[id]
	if !exists {
		m.seq++
		d.seq = m.seq
	}
	d.body = body
	coll[id] = d
}

func (m *Memory) QueryByField(_ context.Context, collection, field, value string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []json.RawMessage
	for _, d := range m.ordered(collection) {
		var fields map[string]any
		if err := json.Unmarshal(d.body, &fields); err != nil {
			return nil, err
		}
		if v, ok := fields[field].(string); ok && v == value {
			out = append(out, clone(d.body))
		}
	}
	return out, nil
}

func (m *Memory) ListAll(_ context.Context, collection string) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := m.ordered(collection)
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, clone(d.body))
	}
	return out, nil
}

// Update holds the write lock while fn runs, so fn must not call back into m.
func (m *Memory) Update(ctx context.Context, collection, id string, fn func(current json.RawMessage) (json.RawMessage, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return models.ErrNotFound
	}
	next, err := fn(clone(d.body))
	if err != nil {
		return err
	}
	m.putLocked(collection, id, clone(next))
	return nil
}

// ordered returns documents in insertion order; callers hold m.mu.
func (m *Memory) ordered(collection string) []memDoc {
	coll := m.docs[collection]
	out := make([]memDoc, 0, len(coll))
	for _, d := range coll {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func clone(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
