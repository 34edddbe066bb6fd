package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory. It mirrors the sqlite
// semantics closely enough to back the engine and dispatcher in tests.
type memoryStore struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[string]Subscriber // keyed by identity
	dedup  map[string]time.Time
}

func NewMemory() Store {
	return &memoryStore{
		nextID: 1,
		subs:   make(map[string]Subscriber),
		dedup:  make(map[string]time.Time),
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) FindByIdentity(_ context.Context, identity string) (Subscriber, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[identity]
	if !ok {
		return Subscriber{}, false, nil
	}
	return copySubscriber(sub), true, nil
}

func (m *memoryStore) Upsert(_ context.Context, s Subscriber) (Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if got, ok := m.subs[s.Identity]; ok {
		return copySubscriber(got), nil
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.ID = m.nextID
	m.nextID++
	m.subs[s.Identity] = copySubscriber(s)
	return copySubscriber(s), nil
}

func (m *memoryStore) UpdateCategories(_ context.Context, identity string, categories []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[identity]
	if !ok {
		return fmt.Errorf("update %s: %w", identity, ErrNotFound)
	}
	sub.Categories = append([]string(nil), categories...)
	m.subs[identity] = sub
	return nil
}

func (m *memoryStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, identity)
	return nil
}

func (m *memoryStore) ListSubscribed(_ context.Context, category string) ([]Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Subscriber
	for _, sub := range m.subs {
		if len(sub.Categories) == 0 {
			continue
		}
		if category == "all" || contains(sub.Categories, category) || contains(sub.Categories, "all") {
			out = append(out, copySubscriber(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) PutDedup(_ context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	m.mu.Lock()
	m.dedup[key] = until
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.dedup[key]
	return until, ok, nil
}

func contains(set []string, key string) bool {
	for _, v := range set {
		if v == key {
			return true
		}
	}
	return false
}

func copySubscriber(s Subscriber) Subscriber {
	s.Categories = append([]string(nil), s.Categories...)
	return s
}
