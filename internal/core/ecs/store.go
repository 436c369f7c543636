package ecs

import (
	"cmp"
	"fmt"
	"slices"
)

// location points from an entity to its row. arch indexes Store.arena.
type location struct {
	arch int
	row  int
}

// Store groups entities by their exact tag set into columnar archetypes.
// Archetypes live in an arena and are referenced by index; order lists the
// arena indices sorted by key so iteration never depends on map order.
// Single writer, no locks.
type Store struct {
	arena []*Archetype
	byKey map[string]int
	order []int
	locs  map[EntityID]location
}

func NewStore() *Store {
	return &Store{
		byKey: make(map[string]int, 16),
		locs:  make(map[EntityID]location, 256),
	}
}

// ComponentValue is one tag/value pair of an entity.
type ComponentValue struct {
	Tag   Tag
	Value string
}

// EnsureEntity registers id in the empty archetype if it is unknown.
func (s *Store) EnsureEntity(id EntityID) {
	if _, ok := s.locs[id]; ok {
		return
	}
	ai := s.archetypeFor(NewArchetypeKey())
	s.place(ai, id, nil)
}

func (s *Store) Has(id EntityID) bool {
	_, ok := s.locs[id]
	return ok
}

// Len returns the number of known entities.
func (s *Store) Len() int { return len(s.locs) }

// ArchetypeCount includes archetypes that have become empty.
func (s *Store) ArchetypeCount() int { return len(s.arena) }

func (s *Store) Get(id EntityID, tag Tag) (string, bool) {
	loc, ok := s.locs[id]
	if !ok {
		return "", false
	}
	a := s.arena[loc.arch]
	c := a.column(tag)
	if c < 0 {
		return "", false
	}
	return a.columns[c][loc.row], true
}

// Set writes tag on id. An existing slot is overwritten in place; a new tag
// migrates the entity to the archetype of its new tag set.
func (s *Store) Set(id EntityID, tag Tag, val string) {
	s.EnsureEntity(id)
	loc := s.locs[id]
	a := s.arena[loc.arch]
	if c := a.column(tag); c >= 0 {
		a.columns[c][loc.row] = val
		return
	}
	comps := s.Components(id)
	i, _ := slices.BinarySearchFunc(comps, tag, func(cv ComponentValue, t Tag) int {
		return cmp.Compare(cv.Tag, t)
	})
	comps = slices.Insert(comps, i, ComponentValue{Tag: tag, Value: val})
	s.migrate(id, comps)
}

// Remove drops tag from id. Unknown entities and absent tags are no-ops.
func (s *Store) Remove(id EntityID, tag Tag) {
	loc, ok := s.locs[id]
	if !ok {
		return
	}
	if s.arena[loc.arch].column(tag) < 0 {
		return
	}
	comps := slices.DeleteFunc(s.Components(id), func(cv ComponentValue) bool {
		return cv.Tag == tag
	})
	s.migrate(id, comps)
}

// RemoveEntity deletes id and all its components. The id is not reusable.
func (s *Store) RemoveEntity(id EntityID) {
	loc, ok := s.locs[id]
	if !ok {
		return
	}
	s.detach(loc)
	delete(s.locs, id)
}

// Components returns id's components sorted by tag.
func (s *Store) Components(id EntityID) []ComponentValue {
	loc, ok := s.locs[id]
	if !ok {
		return nil
	}
	a := s.arena[loc.arch]
	out := make([]ComponentValue, len(a.key.tags))
	for c, t := range a.key.tags {
		out[c] = ComponentValue{Tag: t, Value: a.columns[c][loc.row]}
	}
	return out
}

// migrate moves id to the archetype matching comps (sorted by tag).
func (s *Store) migrate(id EntityID, comps []ComponentValue) {
	tags := make([]Tag, len(comps))
	values := make([]string, len(comps))
	for i, cv := range comps {
		tags[i] = cv.Tag
		values[i] = cv.Value
	}
	s.detach(s.locs[id])
	s.place(s.archetypeFor(NewArchetypeKey(tags...)), id, values)
}

// detach removes a row and resyncs the locations of every row after it.
func (s *Store) detach(loc location) {
	a := s.arena[loc.arch]
	a.remove(loc.row)
	s.resync(loc.arch, loc.row)
}

// place inserts id at its sorted position and resyncs the shifted rows.
func (s *Store) place(ai int, id EntityID, values []string) {
	a := s.arena[ai]
	row := a.insertPos(id)
	a.insert(row, id, values)
	s.resync(ai, row)
}

func (s *Store) resync(ai, from int) {
	a := s.arena[ai]
	for row := from; row < len(a.entities); row++ {
		s.locs[a.entities[row]] = location{arch: ai, row: row}
	}
}

func (s *Store) archetypeFor(key ArchetypeKey) int {
	if ai, ok := s.byKey[key.id]; ok {
		return ai
	}
	ai := len(s.arena)
	s.arena = append(s.arena, newArchetype(key))
	s.byKey[key.id] = ai
	pos, _ := slices.BinarySearchFunc(s.order, key, func(i int, k ArchetypeKey) int {
		return s.arena[i].key.Compare(k)
	})
	s.order = slices.Insert(s.order, pos, ai)
	return ai
}

// CheckInvariants verifies the column/row lock-step, row ordering and the
// location back-references.
func (s *Store) CheckInvariants() error {
	rows := 0
	for ai, a := range s.arena {
		for c, col := range a.columns {
			if len(col) != len(a.entities) {
				return fmt.Errorf("archetype %s: column %s has %d rows, want %d",
					a.key, a.key.tags[c], len(col), len(a.entities))
			}
		}
		for row, id := range a.entities {
			if row > 0 && a.entities[row-1] >= id {
				return fmt.Errorf("archetype %s: entities not strictly increasing at row %d", a.key, row)
			}
			loc, ok := s.locs[id]
			if !ok {
				return fmt.Errorf("archetype %s: entity %d has no location", a.key, id)
			}
			if loc.arch != ai || loc.row != row {
				return fmt.Errorf("entity %d: location (%d,%d) but stored at (%d,%d)", id, loc.arch, loc.row, ai, row)
			}
		}
		rows += len(a.entities)
	}
	if rows != len(s.locs) {
		return fmt.Errorf("location map has %d entries for %d rows", len(s.locs), rows)
	}
	for i := 1; i < len(s.order); i++ {
		if s.arena[s.order[i-1]].key.Compare(s.arena[s.order[i]].key) >= 0 {
			return fmt.Errorf("archetype order broken at %d", i)
		}
	}
	return nil
}
