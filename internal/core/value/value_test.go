package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seum-lang/worldcore/internal/core/fixed"
)

func TestCanonKeyDistinguishesVariants(t *testing.T) {
	vals := []Value{
		None{},
		Bool(true),
		Bool(false),
		FixedOf(fixed.MustParse("1.5")),
		Unit{Amount: fixed.MustParse("1.5")},
		Unit{Amount: fixed.MustParse("1.5"), Dim: "KRW"},
		String("1.5"),
		String("none"),
		Handle(42),
		NewList(String("a")),
		NewSet(String("a")),
		NewMap(MapEntry{Key: String("a"), Value: None{}}),
	}
	seen := map[string]int{}
	for i, v := range vals {
		k := CanonKey(v)
		if j, dup := seen[k]; dup {
			t.Fatalf("values %d and %d share canonical key %q", j, i, k)
		}
		seen[k] = i
	}
}

func TestCanonKeyUsesExactFixed(t *testing.T) {
	v := FixedOf(fixed.MustParse("0.1"))
	assert.Equal(t, "0.09999999986030161380767822265625", CanonKey(v))
	assert.Equal(t, `3.25@"m"`, CanonKey(Unit{Amount: fixed.MustParse("3.25"), Dim: "m"}))
}

func TestSetFirstWriteWinsAndSorts(t *testing.T) {
	s := NewSet(String("b"), String("a"), String("b"), Bool(true))
	require.Equal(t, 3, s.Len())
	var keys []string
	for _, v := range s.Items() {
		keys = append(keys, CanonKey(v))
	}
	assert.Equal(t, []string{`"a"`, `"b"`, "true"}, keys)
	assert.True(t, s.Contains(String("a")))
	assert.False(t, s.Contains(String("c")))
}

func TestMapFirstWriteWins(t *testing.T) {
	m := NewMap(
		MapEntry{Key: String("k"), Value: FixedOf(fixed.FromInt(1))},
		MapEntry{Key: String("j"), Value: Bool(false)},
		MapEntry{Key: String("k"), Value: FixedOf(fixed.FromInt(2))},
	)
	require.Equal(t, 2, m.Len())
	v, ok := m.Get(String("k"))
	require.True(t, ok)
	assert.Equal(t, FixedOf(fixed.FromInt(1)), v)
	assert.Equal(t, String("j"), m.At(0).Key)

	_, ok = m.Get(String("missing"))
	assert.False(t, ok)
}

func TestSetEncodingIgnoresInsertionOrder(t *testing.T) {
	a := NewSet(Handle(3), Handle(1), Handle(2))
	b := NewSet(Handle(2), Handle(3), Handle(1), Handle(3))
	assert.Equal(t, EncodeCanon(nil, a), EncodeCanon(nil, b))
	assert.Equal(t, CanonKey(a), CanonKey(b))

	// lists keep their order
	l1 := NewList(Handle(1), Handle(2))
	l2 := NewList(Handle(2), Handle(1))
	assert.NotEqual(t, EncodeCanon(nil, l1), EncodeCanon(nil, l2))
}

func TestEncodeCanonLayout(t *testing.T) {
	got := EncodeCanon(nil, String("ab"))
	want := []byte{byte(KindString), 2, 0, 0, 0, 0, 0, 0, 0, 'a', 'b'}
	assert.Equal(t, want, got)

	got = EncodeCanon(nil, NewList(Bool(true)))
	want = []byte{byte(KindList), 1, 0, 0, 0, 0, 0, 0, 0, byte(KindBool), 1}
	assert.Equal(t, want, got)

	got = EncodeCanon(nil, FixedOf(fixed.One))
	want = []byte{byte(KindFixed), 0, 0, 0, 0, 1, 0, 0, 0}
	assert.Equal(t, want, got)

	assert.Equal(t, []byte{byte(KindNone)}, EncodeCanon(nil, nil))
}

func TestDivUnit(t *testing.T) {
	krw := func(s string) Unit { return Unit{Amount: fixed.MustParse(s), Dim: "KRW"} }

	q, err := DivUnit(krw("10"), Unit{Amount: fixed.FromInt(4)})
	require.NoError(t, err)
	assert.Equal(t, krw("2.5"), q)

	q, err = DivUnit(krw("10"), krw("5"))
	require.NoError(t, err)
	assert.Equal(t, Unit{Amount: fixed.FromInt(2)}, q)

	_, err = DivUnit(krw("10"), Unit{Amount: fixed.One, Dim: "m"})
	assert.ErrorIs(t, err, ErrDimMismatch)

	_, err = DivUnit(Unit{Amount: fixed.One}, krw("1"))
	assert.ErrorIs(t, err, ErrDimMismatch)

	_, err = DivUnit(krw("1"), Unit{})
	assert.ErrorIs(t, err, fixed.ErrDivByZero)
}

func TestHandles(t *testing.T) {
	h := HandleOf([]byte("자산"))
	assert.Equal(t, h, HandleOf([]byte("자산")))
	assert.NotEqual(t, h, HandleOf([]byte("자산2")))

	back, ok := ParseHandle(h.String())
	require.True(t, ok)
	assert.Equal(t, h, back)

	_, ok = ParseHandle("zz")
	assert.False(t, ok)
	assert.Equal(t, "0100000000000000", Handle(1).String())
}
