package docstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Contents are lost on exit.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (m *MemoryStore) Create(_ context.Context, doc Document) (*Document, error) {
	if doc.OwnerID == "" {
		return nil, errors.New("document owner is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return nil, errors.New("document already exists: " + doc.ID)
	}
	now := time.Now()
	doc.CreatedAt, doc.UpdatedAt = now, now
	doc.Revision = 1
	m.docs[doc.ID] = doc
	return &doc, nil
}

func (m *MemoryStore) Get(_ context.Context, documentID, userID string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	if doc.OwnerID != userID {
		return nil, ErrAccessDenied
	}
	return &doc, nil
}

func (m *MemoryStore) List(_ context.Context, userID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []Document
	for _, d := range m.docs {
		if d.OwnerID == userID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs, nil
}

func (m *MemoryStore) ReadContent(ctx context.Context, documentID, userID string) (string, error) {
	doc, err := m.Get(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	return doc.Content, nil
}

func (m *MemoryStore) WriteContent(_ context.Context, documentID, userID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return ErrNotFound
	}
	if doc.OwnerID != userID {
		return ErrAccessDenied
	}
	doc.Content = content
	doc.Revision++
	doc.UpdatedAt = time.Now()
	m.docs[documentID] = doc
	return nil
}

func (m *MemoryStore) Close() error { return nil }
