package world

import (
	"encoding/hex"
	"strings"

	"lukechampine.com/blake3"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/value"
)

// Digest is a 256-bit state hash.
type Digest [32]byte

func (d Digest) Hex() string    { return hex.EncodeToString(d[:]) }
func (d Digest) String() string { return d.Hex() }

// ParseDigest reads the lowercase hex form.
func ParseDigest(s string) (Digest, bool) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(d) {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// StateHash fingerprints the whole world.
func (w *World) StateHash() Digest {
	return w.StateHashExcluding(nil)
}

// StateHashExcluding fingerprints the world while ignoring every resource
// whose key starts with one of prefixes. Excluded resources are still stored
// and readable; they just do not move the hash.
func (w *World) StateHashExcluding(prefixes []string) Digest {
	return blake3.Sum256(w.CanonicalBytes(prefixes))
}

// CanonicalBytes builds the byte stream the state hash is computed over:
//
//	entity counter
//	JSON resources      count, (key, text)*
//	Fixed64 resources   count, (key, raw)*
//	handle resources    count, (key, raw)*
//	value resources     count, (key, canon)*   omitted entirely when empty
//	components          (entity, tag, text)*
//
// Resources are sorted by key after filtering; components follow
// ForEachComponentSorted.
func (w *World) CanonicalBytes(prefixes []string) []byte {
	keep := func(key string) bool { return !hasAnyPrefix(key, prefixes) }
	buf := make([]byte, 0, 1024)

	buf = value.AppendU64(buf, uint64(w.ids.Peek()))

	jsonEntries := filterEntries(w.ResourceJSONEntries(), keep)
	buf = value.AppendU64(buf, uint64(len(jsonEntries)))
	for _, e := range jsonEntries {
		buf = value.AppendString(buf, e.Key)
		buf = value.AppendString(buf, e.Value)
	}

	fixedEntries := filterEntries(w.ResourceFixed64Entries(), keep)
	buf = value.AppendU64(buf, uint64(len(fixedEntries)))
	for _, e := range fixedEntries {
		buf = value.AppendString(buf, e.Key)
		buf = value.AppendU64(buf, uint64(e.Value.Raw()))
	}

	handleEntries := filterEntries(w.ResourceHandleEntries(), keep)
	buf = value.AppendU64(buf, uint64(len(handleEntries)))
	for _, e := range handleEntries {
		buf = value.AppendString(buf, e.Key)
		buf = value.AppendU64(buf, uint64(e.Value))
	}

	// Histories recorded before the value namespace existed hash without
	// this section, so an empty one must not add even a count.
	if valueEntries := filterEntries(w.ResourceValueEntries(), keep); len(valueEntries) > 0 {
		buf = value.AppendU64(buf, uint64(len(valueEntries)))
		for _, e := range valueEntries {
			buf = value.AppendString(buf, e.Key)
			buf = value.EncodeCanon(buf, e.Value)
		}
	}

	w.store.ForEachComponentSorted(func(id ecs.EntityID, tag ecs.Tag, val string) {
		buf = value.AppendU64(buf, uint64(id))
		buf = value.AppendString(buf, string(tag))
		buf = value.AppendString(buf, val)
	})
	return buf
}

func filterEntries[V any](entries []Entry[V], keep func(string) bool) []Entry[V] {
	out := entries[:0]
	for _, e := range entries {
		if keep(e.Key) {
			out = append(out, e)
		}
	}
	return out
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
