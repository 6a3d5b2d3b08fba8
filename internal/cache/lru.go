package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one stored result. A negative entry records that the producer
// reported ErrNotFound for the key.
type entry[V any] struct {
	key      string
	value    V
	notFound bool
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry[V]) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// servableStale reports whether a positive entry may still stand in for a
// failed refresh.
func (e *entry[V]) servableStale(now time.Time, ceiling time.Duration) bool {
	return !e.notFound && now.Sub(e.storedAt) < e.ttl+ceiling
}

// lruShard is a capacity-bounded LRU over entries. Each shard has its own
// lock, held only for map and list updates, never across producer I/O.
type lruShard[V any] struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	// filling holds keys with a flight in progress; true once the key was
	// invalidated during that flight.
	filling map[string]bool
}

func newLRUShard[V any](capacity int) *lruShard[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &lruShard[V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		filling:  make(map[string]bool),
	}
}

// get returns a copy of the entry for key and marks it most recently used.
func (s *lruShard[V]) get(key string) (entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return entry[V]{}, false
	}
	s.ll.MoveToFront(el)
	return *el.Value.(*entry[V]), true
}

// put stores e and evicts from the back until the shard is within capacity.
// It returns the number of evicted entries.
func (s *lruShard[V]) put(e entry[V]) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(e)
}

func (s *lruShard[V]) putLocked(e entry[V]) int {
	if el, ok := s.items[e.key]; ok {
		*el.Value.(*entry[V]) = e
		s.ll.MoveToFront(el)
		return 0
	}
	s.items[e.key] = s.ll.PushFront(&e)
	evicted := 0
	for s.ll.Len() > s.capacity {
		back := s.ll.Back()
		s.ll.Remove(back)
		delete(s.items, back.Value.(*entry[V]).key)
		evicted++
	}
	return evicted
}

// beginFill marks a flight for key as started.
func (s *lruShard[V]) beginFill(key string) {
	s.mu.Lock()
	s.filling[key] = false
	s.mu.Unlock()
}

// finishFill ends the flight for key and, when keep is set and the key was
// not invalidated meanwhile, stores e. It returns the number of evictions.
func (s *lruShard[V]) finishFill(key string, e entry[V], keep bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	invalidated := s.filling[key]
	delete(s.filling, key)
	if !keep || invalidated {
		return 0
	}
	return s.putLocked(e)
}

// invalidate drops key and voids a flight in progress for it.
func (s *lruShard[V]) invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.filling[key]; ok {
		s.filling[key] = true
	}
	s.removeLocked(key)
}

func (s *lruShard[V]) removeLocked(key string) bool {
	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.ll.Remove(el)
	delete(s.items, key)
	return true
}

func (s *lruShard[V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}
