package ecs

import (
	"encoding/binary"
	"slices"
	"strings"
)

// Tag names a component slot. Component values are opaque text.
type Tag string

// ArchetypeKey is the sorted, deduplicated tag set shared by every entity of
// one archetype. It is a plain value: two keys with the same tags are equal.
type ArchetypeKey struct {
	tags []Tag
	id   string
}

// NewArchetypeKey sorts and deduplicates tags.
func NewArchetypeKey(tags ...Tag) ArchetypeKey {
	sorted := slices.Clone(tags)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return ArchetypeKey{tags: sorted, id: keyID(sorted)}
}

// keyID is a length-prefixed join so that no tag content can make two
// different sets collide.
func keyID(tags []Tag) string {
	var b []byte
	for _, t := range tags {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(t)))
		b = append(b, t...)
	}
	return string(b)
}

func (k ArchetypeKey) Tags() []Tag { return slices.Clone(k.tags) }
func (k ArchetypeKey) Len() int    { return len(k.tags) }

// Has reports whether tag is in the key (binary search).
func (k ArchetypeKey) Has(tag Tag) bool {
	_, ok := slices.BinarySearch(k.tags, tag)
	return ok
}

// Contains reports whether every tag in sub (sorted) is in k.
func (k ArchetypeKey) Contains(sub []Tag) bool {
	i := 0
	for _, t := range sub {
		for i < len(k.tags) && k.tags[i] < t {
			i++
		}
		if i == len(k.tags) || k.tags[i] != t {
			return false
		}
	}
	return true
}

// Compare orders keys lexicographically by their tag lists.
func (k ArchetypeKey) Compare(o ArchetypeKey) int {
	return slices.Compare(k.tags, o.tags)
}

func (k ArchetypeKey) String() string {
	parts := make([]string, len(k.tags))
	for i, t := range k.tags {
		parts[i] = string(t)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Archetype is one columnar table: a column per tag plus the row index of
// member entities. All slices share one length; entities is strictly
// increasing.
type Archetype struct {
	key      ArchetypeKey
	columns  [][]string
	entities []EntityID
}

func newArchetype(key ArchetypeKey) *Archetype {
	return &Archetype{
		key:     key,
		columns: make([][]string, key.Len()),
	}
}

func (a *Archetype) Key() ArchetypeKey { return a.key }
func (a *Archetype) Len() int          { return len(a.entities) }

func (a *Archetype) Entities() []EntityID { return slices.Clone(a.entities) }

func (a *Archetype) column(tag Tag) int {
	i, ok := slices.BinarySearch(a.key.tags, tag)
	if !ok {
		return -1
	}
	return i
}

// insertPos is where id belongs in the sorted row index.
func (a *Archetype) insertPos(id EntityID) int {
	i, _ := slices.BinarySearch(a.entities, id)
	return i
}

// insert places id at row with values given in tag order.
func (a *Archetype) insert(row int, id EntityID, values []string) {
	a.entities = slices.Insert(a.entities, row, id)
	for c := range a.columns {
		a.columns[c] = slices.Insert(a.columns[c], row, values[c])
	}
}

// remove deletes row, shifting every later row down by one.
func (a *Archetype) remove(row int) {
	a.entities = slices.Delete(a.entities, row, row+1)
	for c := range a.columns {
		a.columns[c] = slices.Delete(a.columns[c], row, row+1)
	}
}
