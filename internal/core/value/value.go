package value

import (
	"encoding/hex"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/seum-lang/worldcore/internal/core/fixed"
)

// Kind is the discriminant of a Value. The numeric values are part of the
// canonical encoding and must never be renumbered.
type Kind byte

const (
	KindNone Kind = iota
	KindBool
	KindFixed
	KindUnit
	KindString
	KindHandle
	KindList
	KindSet
	KindMap
)

var kindNames = [...]string{"none", "bool", "fixed", "unit", "string", "handle", "list", "set", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ErrDimMismatch is returned by unit arithmetic on incompatible dimensions.
var ErrDimMismatch = errors.New("value: dimension mismatch")

// Value is the closed set of storable resource values.
type Value interface {
	Kind() Kind
	sealed()
}

type (
	None   struct{}
	Bool   bool
	Fixed  fixed.Fixed64
	String string
)

// Dim names a physical or currency dimension ("m", "KRW"). The empty Dim is
// dimensionless.
type Dim string

// Unit is a fixed-point quantity carrying a dimension.
type Unit struct {
	Amount fixed.Fixed64
	Dim    Dim
}

// Handle is an opaque content-addressed reference.
type Handle uint64

func (h Handle) String() string {
	var b [8]byte
	putU64(b[:], uint64(h))
	return hex.EncodeToString(b[:])
}

// List keeps insertion order and duplicates.
type List struct {
	items []Value
}

// Set holds values deduplicated by canonical key, ordered by that key.
type Set struct {
	items []Value
	keys  []string
}

type MapEntry struct {
	Key   Value
	Value Value
}

// Map holds entries deduplicated by the canonical key of Key, ordered by it.
type Map struct {
	entries []MapEntry
	keys    []string
}

func (None) Kind() Kind   { return KindNone }
func (Bool) Kind() Kind   { return KindBool }
func (Fixed) Kind() Kind  { return KindFixed }
func (Unit) Kind() Kind   { return KindUnit }
func (String) Kind() Kind { return KindString }
func (Handle) Kind() Kind { return KindHandle }
func (List) Kind() Kind   { return KindList }
func (Set) Kind() Kind    { return KindSet }
func (Map) Kind() Kind    { return KindMap }

func (None) sealed()   {}
func (Bool) sealed()   {}
func (Fixed) sealed()  {}
func (Unit) sealed()   {}
func (String) sealed() {}
func (Handle) sealed() {}
func (List) sealed()   {}
func (Set) sealed()    {}
func (Map) sealed()    {}

func FixedOf(f fixed.Fixed64) Fixed { return Fixed(f) }

func (f Fixed) Fixed64() fixed.Fixed64 { return fixed.Fixed64(f) }

func NewList(items ...Value) List {
	return List{items: slices.Clone(items)}
}

func (l List) Len() int            { return len(l.items) }
func (l List) At(i int) Value      { return l.items[i] }
func (l List) Items() []Value      { return slices.Clone(l.items) }
func (l List) Append(v Value) List { return List{items: append(slices.Clone(l.items), v)} }

// NewSet deduplicates by canonical key. The first occurrence of a key wins;
// later duplicates are dropped, not merged.
func NewSet(values ...Value) Set {
	seen := make(map[string]struct{}, len(values))
	s := Set{}
	for _, v := range values {
		k := CanonKey(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		s.items = append(s.items, v)
		s.keys = append(s.keys, k)
	}
	sortByKeys(s.keys, s.items)
	return s
}

func (s Set) Len() int       { return len(s.items) }
func (s Set) At(i int) Value { return s.items[i] }
func (s Set) Items() []Value { return slices.Clone(s.items) }

func (s Set) Contains(v Value) bool {
	_, found := slices.BinarySearch(s.keys, CanonKey(v))
	return found
}

// NewMap deduplicates by the canonical key of each entry's Key. The first
// entry seen for a key wins, value included.
func NewMap(entries ...MapEntry) Map {
	seen := make(map[string]struct{}, len(entries))
	m := Map{}
	for _, e := range entries {
		k := CanonKey(e.Key)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		m.entries = append(m.entries, e)
		m.keys = append(m.keys, k)
	}
	sortByKeys(m.keys, m.entries)
	return m
}

func (m Map) Len() int            { return len(m.entries) }
func (m Map) At(i int) MapEntry   { return m.entries[i] }
func (m Map) Entries() []MapEntry { return slices.Clone(m.entries) }

func (m Map) Get(key Value) (Value, bool) {
	i, found := slices.BinarySearch(m.keys, CanonKey(key))
	if !found {
		return nil, false
	}
	return m.entries[i].Value, true
}

func sortByKeys[T any](keys []string, items []T) {
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return strings.Compare(keys[a], keys[b]) })
	sk := make([]string, len(keys))
	si := make([]T, len(items))
	for to, from := range idx {
		sk[to] = keys[from]
		si[to] = items[from]
	}
	copy(keys, sk)
	copy(items, si)
}

// DivUnit divides two quantities. A dimensionless divisor keeps the
// dividend's dimension; equal dimensions cancel. Compound dimensions are not
// representable and report ErrDimMismatch.
func DivUnit(a, b Unit) (Unit, error) {
	var dim Dim
	switch {
	case b.Dim == "":
		dim = a.Dim
	case a.Dim == b.Dim:
		dim = ""
	default:
		return Unit{}, ErrDimMismatch
	}
	q, err := a.Amount.CheckedDiv(b.Amount)
	if err != nil {
		return Unit{}, err
	}
	return Unit{Amount: q, Dim: dim}, nil
}
