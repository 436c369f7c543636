package ecs

import "slices"

// QueryAllTags returns, ascending by id, every entity whose archetype has all
// of tags.
func (s *Store) QueryAllTags(tags ...Tag) []EntityID {
	want := NewArchetypeKey(tags...).tags
	var out []EntityID
	for _, ai := range s.order {
		a := s.arena[ai]
		if len(a.entities) == 0 || !a.key.Contains(want) {
			continue
		}
		out = append(out, a.entities...)
	}
	slices.Sort(out)
	return out
}

// ForEachComponentSorted visits every (entity, tag, value) triple:
// archetypes in key order, rows by ascending id, tags ascending. The state
// hash depends on this order.
func (s *Store) ForEachComponentSorted(visit func(id EntityID, tag Tag, val string)) {
	for _, ai := range s.order {
		a := s.arena[ai]
		for row, id := range a.entities {
			for c, t := range a.key.tags {
				visit(id, t, a.columns[c][row])
			}
		}
	}
}
