// Package collection provides a small keyed collection with insertion order
// and named filtered views. The registry and room membership are built on it;
// callers are responsible for locking.
package collection

import "github.com/samber/lo"

// Collection stores values keyed by a caller-supplied key function.
// Iteration follows insertion order.
type Collection[T any] struct {
	key   func(T) string
	items map[string]T
	order []string
	views map[string]func(T) bool
}

// New builds an empty collection using key to identify values.
func New[T any](key func(T) string) *Collection[T] {
	return &Collection[T]{
		key:   key,
		items: make(map[string]T),
		views: make(map[string]func(T) bool),
	}
}

// Len returns the number of stored values.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Has reports whether a value with the given key is stored.
func (c *Collection[T]) Has(k string) bool {
	_, ok := c.items[k]
	return ok
}

// Get returns the value stored under k.
func (c *Collection[T]) Get(k string) (T, bool) {
	v, ok := c.items[k]
	return v, ok
}

// Insert stores v under its key. Returns false if the key is already taken.
func (c *Collection[T]) Insert(v T) bool {
	k := c.key(v)
	if _, ok := c.items[k]; ok {
		return false
	}
	c.items[k] = v
	c.order = append(c.order, k)
	return true
}

// RemoveByKey deletes the value stored under k and returns it.
func (c *Collection[T]) RemoveByKey(k string) (T, bool) {
	v, ok := c.items[k]
	if !ok {
		var zero T
		return zero, false
	}
	delete(c.items, k)
	for i, o := range c.order {
		if o == k {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return v, true
}

// UpdateByKey applies fn to the value stored under k and stores the result.
// Returns false if no value is stored under k.
func (c *Collection[T]) UpdateByKey(k string, fn func(T) T) bool {
	v, ok := c.items[k]
	if !ok {
		return false
	}
	c.items[k] = fn(v)
	return true
}

// Keys returns all keys in insertion order.
func (c *Collection[T]) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Values returns all values in insertion order.
func (c *Collection[T]) Values() []T {
	return lo.Map(c.order, func(k string, _ int) T { return c.items[k] })
}

// DefineView registers a named predicate. Views are evaluated lazily, so they
// always reflect the current contents of the collection.
func (c *Collection[T]) DefineView(name string, pred func(T) bool) {
	c.views[name] = pred
}

// View returns the values matching the named predicate, in insertion order.
// An unknown view name yields an empty slice.
func (c *Collection[T]) View(name string) []T {
	pred, ok := c.views[name]
	if !ok {
		return nil
	}
	return c.Select(pred)
}

// Select returns the values matching pred, in insertion order.
func (c *Collection[T]) Select(pred func(T) bool) []T {
	return lo.Filter(c.Values(), func(v T, _ int) bool { return pred(v) })
}
