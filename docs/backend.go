// CLAUDE:SUMMARY Storage collaborator contract (per-collection load/save, optional atomic SaveAll) and a JSON in-memory backend.
package docs

import (
	"context"
	"encoding/json"
	"sync"
)

// Backend persists the two collections. Each call is atomic on its own;
// nothing is promised across calls.
type Backend interface {
	LoadDocuments(ctx context.Context) ([]Document, error)
	SaveDocuments(ctx context.Context, docs []Document) error
	LoadPages(ctx context.Context) (map[string]Page, error)
	SavePages(ctx context.Context, pages map[string]Page) error
}

// AtomicBackend is implemented by backends that can write both collections
// in a single transaction. The Store prefers it when a mutation touches both.
type AtomicBackend interface {
	Backend
	SaveAll(ctx context.Context, docs []Document, pages map[string]Page) error
}

// MemoryBackend keeps both collections as JSON blobs in memory, the same
// shape a key/value store would hold. Zero value is ready to use.
type MemoryBackend struct {
	mu    sync.Mutex
	docs  []byte
	pages []byte
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) LoadDocuments(_ context.Context) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	if len(m.docs) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.docs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryBackend) SaveDocuments(_ context.Context, docs []Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) LoadPages(_ context.Context) (map[string]Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]Page{}
	if len(m.pages) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.pages, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MemoryBackend) SavePages(_ context.Context, pages map[string]Page) error {
	data, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pages = data
	m.mu.Unlock()
	return nil
}
