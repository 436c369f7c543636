package world

import (
	"slices"
	"strings"

	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/value"
)

// Entry is one resource of a namespace, as returned by the *Entries readers.
type Entry[V any] struct {
	Key   string
	Value V
}

func (w *World) GetResourceJSON(key string) (string, bool) {
	v, ok := w.jsonRes[key]
	return v, ok
}

func (w *World) SetResourceJSON(key, text string) { w.jsonRes[key] = text }

func (w *World) GetResourceFixed64(key string) (fixed.Fixed64, bool) {
	v, ok := w.fixedRes[key]
	return v, ok
}

func (w *World) SetResourceFixed64(key string, v fixed.Fixed64) { w.fixedRes[key] = v }

func (w *World) GetResourceHandle(key string) (value.Handle, bool) {
	v, ok := w.handleRes[key]
	return v, ok
}

func (w *World) SetResourceHandle(key string, h value.Handle) { w.handleRes[key] = h }

func (w *World) GetResourceValue(key string) (value.Value, bool) {
	v, ok := w.valueRes[key]
	return v, ok
}

// SetResourceValue stores v; a nil v is stored as value.None.
func (w *World) SetResourceValue(key string, v value.Value) {
	if v == nil {
		v = value.None{}
	}
	w.valueRes[key] = v
}

func (w *World) ResourceJSONEntries() []Entry[string] { return sortedEntries(w.jsonRes) }

func (w *World) ResourceFixed64Entries() []Entry[fixed.Fixed64] { return sortedEntries(w.fixedRes) }

func (w *World) ResourceHandleEntries() []Entry[value.Handle] { return sortedEntries(w.handleRes) }

func (w *World) ResourceValueEntries() []Entry[value.Value] { return sortedEntries(w.valueRes) }

func sortedEntries[V any](m map[string]V) []Entry[V] {
	out := make([]Entry[V], 0, len(m))
	for k, v := range m {
		out = append(out, Entry[V]{Key: k, Value: v})
	}
	slices.SortFunc(out, func(a, b Entry[V]) int { return strings.Compare(a.Key, b.Key) })
	return out
}
