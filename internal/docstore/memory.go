package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spetr/aethersync/pkg/provider"
)

// Memory is an in-process DocumentStore. It follows MongoDB's update
// semantics for $set and $setOnInsert with dotted paths.
type Memory struct {
	mu          sync.Mutex
	collections map[string][]map[string]any
}

var _ provider.DocumentStore = (*Memory)(nil)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]map[string]any)}
}

// Name returns the store name.
func (m *Memory) Name() string {
	return "memory"
}

// Upsert implements provider.DocumentStore.
func (m *Memory) Upsert(ctx context.Context, collection, keyField string, key any, set, setOnInsert map[string]any) (provider.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return provider.UpsertResult{}, persistErr(collection, err)
	}
	for path := range set {
		if _, clash := setOnInsert[path]; clash {
			return provider.UpsertResult{}, persistErr(collection, fmt.Errorf("path %q in both $set and $setOnInsert", path))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if doc := m.find(collection, keyField, key); doc != nil {
		for path, v := range set {
			setPath(doc, path, v)
		}
		return provider.UpsertResult{Matched: true}, nil
	}

	doc := map[string]any{keyField: key}
	for path, v := range set {
		setPath(doc, path, v)
	}
	for path, v := range setOnInsert {
		setPath(doc, path, v)
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return provider.UpsertResult{Inserted: true}, nil
}

// Insert adds doc as is.
func (m *Memory) Insert(collection string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], doc)
}

// Find returns the document whose keyField equals key, or nil.
// The returned map is shared with the store.
func (m *Memory) Find(collection, keyField string, key any) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(collection, keyField, key)
}

// Count returns the number of documents in collection.
func (m *Memory) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// Close implements provider.DocumentStore.
func (m *Memory) Close(ctx context.Context) error {
	return nil
}

func (m *Memory) find(collection, keyField string, key any) map[string]any {
	for _, doc := range m.collections[collection] {
		if sameKey(doc[keyField], key) {
			return doc
		}
	}
	return nil
}

// sameKey compares keys numerically when both are integers of any width.
func sameKey(a, b any) bool {
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		return ai == bi
	}
	return a == b
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// setPath assigns v at a dotted path, creating intermediate documents.
func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
