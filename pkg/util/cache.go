package util

import (
	"container/list"
	"sync"
)

type (
	// LRUCache is a bounded, concurrency-safe map that drops its least
	// recently used entry once more than capacity entries are held
	LRUCache[K comparable, V any] struct {
		items    map[K]*list.Element
		order    *list.List
		capacity int
		mu       sync.Mutex
	}

	// Constructor builds a value on a cache miss
	Constructor[V any] func() (V, error)

	entry[K comparable, V any] struct {
		key   K
		value V
	}
)

func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		items:    map[K]*list.Element{},
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the value cached under key, calling create and caching its
// result on a miss. Nothing is cached when create fails
func (c *LRUCache[K, V]) Get(key K, create Constructor[V]) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}

	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// another caller may have built it first
	if e, ok := c.items[key]; ok {
		c.order.MoveToFront(e)
		return e.Value.(*entry[K, V]).value, nil
	}
	c.push(key, v)
	return v, nil
}

// Peek returns the value cached under key and marks it recently used
func (c *LRUCache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(e)
	return e.Value.(*entry[K, V]).value, true
}

// Put stores v under key, replacing whatever was there
func (c *LRUCache[K, V]) Put(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.Value.(*entry[K, V]).value = v
		c.order.MoveToFront(e)
		return
	}
	c.push(key, v)
}

func (c *LRUCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.order.Remove(e)
		delete(c.items, key)
	}
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) push(key K, v V) {
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: v})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[K, V]).key)
	}
}
