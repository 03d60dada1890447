package vault

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process vault for local/dev use and tests.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]Document)}
}

// Put inserts or replaces a document. Test and seeding helper.
func (s *InMemoryStore) Put(doc Document) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.docs[doc.ID] = doc
	return doc
}

func (s *InMemoryStore) Search(_ context.Context, query string, maxTier, limit int) ([]Document, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, 8)
	for _, doc := range s.docs {
		if doc.Tier > maxTier {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(doc.Title), needle) &&
			!strings.Contains(strings.ToLower(doc.Content), needle) {
			continue
		}
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string, maxTier int) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok || doc.Tier > maxTier {
		// Hidden documents are indistinguishable from absent ones.
		return Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) List(_ context.Context, maxTier, limit int) ([]Document, error) {
	return s.Search(context.Background(), "", maxTier, limit)
}

func (s *InMemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Documents: len(s.docs)}
	for _, doc := range s.docs {
		if doc.Tier > 0 {
			stats.Restricted++
		}
	}
	return stats, nil
}

func (s *InMemoryStore) Close() error { return nil }
