package world

import (
	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/value"
)

// World is the simulation state of one run: the archetype store, the entity
// id counter and four resource namespaces. It has a single writer (the patch
// engine, or bootstrap code before the first tick) and no locks.
type World struct {
	store *ecs.Store
	ids   *ecs.Allocator

	jsonRes   map[string]string
	fixedRes  map[string]fixed.Fixed64
	handleRes map[string]value.Handle
	valueRes  map[string]value.Value
}

func New() *World {
	return &World{
		store:     ecs.NewStore(),
		ids:       ecs.NewAllocator(),
		jsonRes:   make(map[string]string),
		fixedRes:  make(map[string]fixed.Fixed64),
		handleRes: make(map[string]value.Handle),
		valueRes:  make(map[string]value.Value),
	}
}

// Reset replaces the whole world with an empty one.
func (w *World) Reset() { *w = *New() }

// Store exposes the component store for read-side queries.
func (w *World) Store() *ecs.Store { return w.store }

// NextEntityID is the id the next Spawn returns.
func (w *World) NextEntityID() ecs.EntityID { return w.ids.Peek() }

// Spawn allocates a fresh id and registers it with no components.
func (w *World) Spawn() ecs.EntityID {
	id := w.ids.Next()
	w.store.EnsureEntity(id)
	return id
}

// EnsureEntity registers an externally assigned id.
func (w *World) EnsureEntity(id ecs.EntityID) {
	w.ids.Observe(id)
	w.store.EnsureEntity(id)
}

// Despawn removes id and its components. The id is never reallocated.
func (w *World) Despawn(id ecs.EntityID) { w.store.RemoveEntity(id) }

func (w *World) HasEntity(id ecs.EntityID) bool { return w.store.Has(id) }

func (w *World) EntityCount() int { return w.store.Len() }

func (w *World) GetComponent(id ecs.EntityID, tag ecs.Tag) (string, bool) {
	return w.store.Get(id, tag)
}

// SetComponent writes a component, creating the entity if needed. Ids at or
// above the allocation counter advance it so Spawn never collides.
func (w *World) SetComponent(id ecs.EntityID, tag ecs.Tag, val string) {
	w.ids.Observe(id)
	w.store.Set(id, tag, val)
}

func (w *World) RemoveComponent(id ecs.EntityID, tag ecs.Tag) {
	w.store.Remove(id, tag)
}

func (w *World) Components(id ecs.EntityID) []ecs.ComponentValue {
	return w.store.Components(id)
}

func (w *World) QueryAllTags(tags ...ecs.Tag) []ecs.EntityID {
	return w.store.QueryAllTags(tags...)
}
