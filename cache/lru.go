package cache

import (
	"container/list"
	"time"
)

// lruStore is the L1 layer: a bounded map with strict least-recently-used
// eviction. Get and Set are O(1); the doubly linked list keeps recency
// order, ties broken by insertion order. Not safe for concurrent use; the
// owning MultiLevel serializes access under its own lock.
type lruStore struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func newLRUStore(capacity int) *lruStore {
	return &lruStore{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// get returns the live value for key and marks it most recently used.
// Expired entries are removed on access.
func (s *lruStore) get(key string) ([]byte, bool) {
	elem, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*lruEntry)
	if s.expired(entry) {
		s.remove(elem)
		return nil, false
	}
	s.order.MoveToFront(elem)
	return entry.value, true
}

// set inserts or replaces key, evicting the least-recently-used entry when
// the insert would exceed capacity.
func (s *lruStore) set(key string, value []byte, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}

	if elem, ok := s.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		s.order.MoveToFront(elem)
		return
	}

	if s.order.Len() >= s.capacity {
		if oldest := s.order.Back(); oldest != nil {
			s.remove(oldest)
		}
	}
	s.entries[key] = s.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
}

func (s *lruStore) delete(key string) bool {
	elem, ok := s.entries[key]
	if !ok {
		return false
	}
	s.remove(elem)
	return true
}

// deletePattern removes every key matching the glob and returns the count.
// L1 is small and bounded, so the full scan is fine.
func (s *lruStore) deletePattern(pattern string) int {
	deleted := 0
	for key, elem := range s.entries {
		if matchGlob(pattern, key) {
			s.remove(elem)
			deleted++
		}
	}
	return deleted
}

func (s *lruStore) clear() {
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

func (s *lruStore) len() int {
	return s.order.Len()
}

func (s *lruStore) expired(entry *lruEntry) bool {
	return !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt)
}

func (s *lruStore) remove(elem *list.Element) {
	entry := elem.Value.(*lruEntry)
	s.order.Remove(elem)
	delete(s.entries, entry.key)
}
