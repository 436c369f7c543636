package ecs

// EntityID identifies an entity. IDs are allocated in strictly increasing
// order and never reused; zero is never handed out by an Allocator.
type EntityID uint64

func (id EntityID) IsZero() bool { return id == 0 }

// Allocator hands out entity ids. Unlike a generational pool there is no
// free list: a destroyed id stays retired so replays allocate identically.
type Allocator struct {
	next EntityID
}

func NewAllocator() *Allocator {
	return &Allocator{next: 1}
}

// Next returns the next unused id and advances the counter.
func (a *Allocator) Next() EntityID {
	id := a.next
	a.next++
	return id
}

// Peek returns the id the next call to Next will return.
func (a *Allocator) Peek() EntityID { return a.next }

// Observe advances the counter past an id assigned outside the allocator.
func (a *Allocator) Observe(id EntityID) {
	if id >= a.next {
		a.next = id + 1
	}
}
