// Package bimap implements a map that can be looked up in both directions
package bimap

// BiMap is a one to one mapping between keys and values
type BiMap[K comparable, V comparable] struct {
	forward   map[K]V
	inverse   map[V]K
	immutable bool
}

// NewBiMap returns an empty, mutable BiMap
func NewBiMap[K comparable, V comparable]() *BiMap[K, V] {
	return &BiMap[K, V]{
		forward: make(map[K]V),
		inverse: make(map[V]K),
	}
}

func (b *BiMap[K, V]) mutate() {
	if b.immutable {
		panic("Cannot modify immutable map")
	}
}

// Insert adds the pair, replacing any pair that shared its key or its value
func (b *BiMap[K, V]) Insert(k K, v V) {
	b.mutate()
	if old, ok := b.forward[k]; ok {
		delete(b.inverse, old)
	}
	if old, ok := b.inverse[v]; ok {
		delete(b.forward, old)
	}
	b.forward[k] = v
	b.inverse[v] = k
}

func (b *BiMap[K, V]) Exists(k K) bool {
	_, ok := b.forward[k]
	return ok
}

func (b *BiMap[K, V]) ExistsInverse(v V) bool {
	_, ok := b.inverse[v]
	return ok
}

func (b *BiMap[K, V]) Get(k K) (V, bool) {
	v, ok := b.forward[k]
	return v, ok
}

func (b *BiMap[K, V]) GetInverse(v V) (K, bool) {
	k, ok := b.inverse[v]
	return k, ok
}

func (b *BiMap[K, V]) Delete(k K) {
	b.mutate()
	if v, ok := b.forward[k]; ok {
		delete(b.forward, k)
		delete(b.inverse, v)
	}
}

func (b *BiMap[K, V]) DeleteInverse(v V) {
	b.mutate()
	if k, ok := b.inverse[v]; ok {
		delete(b.inverse, v)
		delete(b.forward, k)
	}
}

func (b *BiMap[K, V]) Size() int {
	return len(b.forward)
}

// MakeImmutable freezes the map. Any later mutation panics.
func (b *BiMap[K, V]) MakeImmutable() {
	b.immutable = true
}

// GetForwardMap returns a copy of the key to value mapping
func (b *BiMap[K, V]) GetForwardMap() map[K]V {
	m := make(map[K]V, len(b.forward))
	for k, v := range b.forward {
		m[k] = v
	}
	return m
}

// GetInverseMap returns a copy of the value to key mapping
func (b *BiMap[K, V]) GetInverseMap() map[V]K {
	m := make(map[V]K, len(b.inverse))
	for v, k := range b.inverse {
		m[v] = k
	}
	return m
}
