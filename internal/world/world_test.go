package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/value"
)

func TestSpawnAllocatesIncreasingIDs(t *testing.T) {
	w := New()
	a := w.Spawn()
	b := w.Spawn()
	assert.Less(t, a, b)
	assert.True(t, w.HasEntity(a))
	assert.Equal(t, 2, w.EntityCount())

	w.Despawn(a)
	c := w.Spawn()
	assert.NotEqual(t, a, c, "ids are never reused")
}

func TestExternalIDsAdvanceCounter(t *testing.T) {
	w := New()
	w.SetComponent(100, "name", "외부")
	assert.Equal(t, ecs.EntityID(101), w.NextEntityID())
	assert.Equal(t, ecs.EntityID(101), w.Spawn())

	w.EnsureEntity(500)
	assert.Equal(t, ecs.EntityID(501), w.Spawn())

	// lower ids leave the counter alone
	w.SetComponent(3, "name", "x")
	assert.Equal(t, ecs.EntityID(502), w.NextEntityID())
}

func TestComponentDelegation(t *testing.T) {
	w := New()
	id := w.Spawn()
	w.SetComponent(id, "a", "1")
	w.SetComponent(id, "b", "2")
	assert.Equal(t, []ecs.EntityID{id}, w.QueryAllTags("a", "b"))

	w.RemoveComponent(id, "a")
	assert.Empty(t, w.QueryAllTags("a", "b"))
	v, ok := w.GetComponent(id, "b")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, []ecs.ComponentValue{{Tag: "b", Value: "2"}}, w.Components(id))
}

func TestResourceRoundTrip(t *testing.T) {
	w := New()
	price := fixed.MustParse("-1234.00390625")
	qty := value.Unit{Amount: fixed.MustParse("0.5"), Dim: "KRW"}
	rich := value.NewMap(value.MapEntry{Key: value.String("q"), Value: qty})

	w.SetResourceJSON("cfg", `{"a":1}`)
	w.SetResourceFixed64("price", price)
	w.SetResourceHandle("asset", value.Handle(0xdeadbeef))
	w.SetResourceValue("book", rich)
	w.SetResourceValue("nothing", nil)

	j, ok := w.GetResourceJSON("cfg")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, j)

	f, ok := w.GetResourceFixed64("price")
	require.True(t, ok)
	assert.Equal(t, price.Raw(), f.Raw())

	h, ok := w.GetResourceHandle("asset")
	require.True(t, ok)
	assert.Equal(t, value.Handle(0xdeadbeef), h)

	v, ok := w.GetResourceValue("book")
	require.True(t, ok)
	got, _ := v.(value.Map).Get(value.String("q"))
	assert.Equal(t, qty, got)

	v, ok = w.GetResourceValue("nothing")
	require.True(t, ok)
	assert.Equal(t, value.None{}, v)

	_, ok = w.GetResourceFixed64("missing")
	assert.False(t, ok)
}

func TestEntriesAreSortedByKey(t *testing.T) {
	w := New()
	for _, k := range []string{"나", "b", "가", "a"} {
		w.SetResourceFixed64(k, fixed.One)
	}
	var keys []string
	for _, e := range w.ResourceFixed64Entries() {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"a", "b", "가", "나"}, keys)
}

func TestReset(t *testing.T) {
	w := New()
	w.SetComponent(9, "a", "b")
	w.SetResourceJSON("k", "v")
	empty := New().StateHash()
	require.NotEqual(t, empty, w.StateHash())

	w.Reset()
	assert.Equal(t, empty, w.StateHash())
	assert.Equal(t, ecs.EntityID(1), w.NextEntityID())
}
