package fakeapi

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Store keeps fixture records grouped by collection name, e.g. "posts".
type Store struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string][]map[string]any),
	}
}

// LoadStore reads a JSON document mapping collection names to lists of records.
func LoadStore(data io.Reader) (*Store, error) {
	fixtures := map[string][]map[string]any{}

	if err := json.NewDecoder(data).Decode(&fixtures); err != nil {
		return nil, fmt.Errorf("failed to decode fixtures: %w", err)
	}

	s := NewStore()
	for collection, records := range fixtures {
		s.Add(collection, records...)
	}

	return s, nil
}

func (s *Store) Add(collection string, records ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		s.collections[collection] = append(s.collections[collection], maps.Clone(r))
	}
}

func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := slices.Collect(maps.Keys(s.collections))
	sort.Strings(names)
	return names
}

func (s *Store) Has(collection string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[collection]
	return ok
}

// Get returns the record whose id renders as id.
func (s *Store) Get(collection, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.collections[collection] {
		if sameID(r["id"], id) {
			return maps.Clone(r), true
		}
	}

	return nil, false
}

// Query returns the records whose attributes equal every filter value.
func (s *Store) Query(collection string, filters map[string]string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []map[string]any{}

	for _, r := range s.collections[collection] {
		if matches(r, filters) {
			result = append(result, maps.Clone(r))
		}
	}

	return result
}

// Batch returns the records with the given ids, in store order.
func (s *Store) Batch(collection string, ids []any) []map[string]any {
	wanted := make([]string, 0, len(ids))
	for _, id := range ids {
		wanted = append(wanted, fmt.Sprint(id))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []map[string]any{}
	for _, r := range s.collections[collection] {
		if slices.ContainsFunc(wanted, func(id string) bool { return sameID(r["id"], id) }) {
			result = append(result, maps.Clone(r))
		}
	}

	return result
}

func matches(r map[string]any, filters map[string]string) bool {
	for k, v := range filters {
		attr, ok := r[k]
		if !ok || fmt.Sprint(attr) != v {
			return false
		}
	}
	return true
}

func sameID(value any, id string) bool {
	if value == nil {
		return false
	}
	return strings.EqualFold(fmt.Sprint(value), id)
}
