package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/world"
)

const traderScript = `
function on_tick(tick)
  for _, id in ipairs(world.query("재고")) do
    local stock = tonumber(world.get_component(id, "재고"))
    if stock > 0 then
      patch.set_component(id, "재고", tostring(stock - 1))
    else
      patch.guard_violation(id, "품절")
    end
  end
  patch.set_fixed("tick", tostring(tick))
  patch.div_fixed("price", "2")
  patch.set_value("basket", {"사과", true, 1.5})
  patch.set_value("book", {krw = 3})
  patch.set_handle("logo", "#0100000000000000")
  patch.set_json("meta", '{"tick":' .. tick .. '}')
  patch.emit("ticked", {"hud"}, tick)
end
`

func TestBuildPatchFromScript(t *testing.T) {
	e, err := NewEngineFromSource(traderScript, "trader", nil)
	require.NoError(t, err)
	defer e.Close()
	require.True(t, e.HasTick())

	w := world.New()
	w.SetComponent(1, "재고", "2")
	w.SetComponent(2, "재고", "0")
	w.SetResourceFixed64("price", fixed.FromInt(10))

	p, ok, err := e.BuildPatch(w, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "system:trader", p.Origin.String())

	require.Len(t, p.Ops, 9)
	assert.Equal(t, patch.SetComponent{Entity: 1, Tag: "재고", Value: "1"}, p.Ops[0])
	assert.Equal(t, patch.GuardViolation{Entity: 2, RuleID: "품절"}, p.Ops[1])
	assert.Equal(t, patch.SetResourceFixed64{Key: "tick", Value: fixed.FromInt(7)}, p.Ops[2])
	assert.Equal(t, patch.DivAssignResourceFixed64{Key: "price", RHS: value.Unit{Amount: fixed.FromInt(2)}}, p.Ops[3])

	basket := p.Ops[4].(patch.SetResourceValue).Value.(value.List)
	require.Equal(t, 3, basket.Len())
	assert.Equal(t, value.String("사과"), basket.At(0))
	assert.Equal(t, value.Bool(true), basket.At(1))
	assert.Equal(t, value.FixedOf(fixed.MustParse("1.5")), basket.At(2))

	book := p.Ops[5].(patch.SetResourceValue).Value.(value.Map)
	v, ok := book.Get(value.String("krw"))
	require.True(t, ok)
	assert.Equal(t, value.FixedOf(fixed.FromInt(3)), v)

	assert.Equal(t, patch.SetResourceHandle{Key: "logo", Handle: 1}, p.Ops[6])
	assert.Equal(t, patch.SetResourceJSON{Key: "meta", JSON: `{"tick":7}`}, p.Ops[7])

	emit := p.Ops[8].(patch.EmitSignal).Signal
	assert.Equal(t, signal.KindCustom, emit.Kind)
	assert.Equal(t, "ticked", emit.Name)
	assert.Equal(t, []string{"hud"}, emit.Targets)
	assert.Equal(t, value.FixedOf(fixed.FromInt(7)), emit.Payload)

	// the script only described changes
	stock, _ := w.GetComponent(1, "재고")
	assert.Equal(t, "2", stock)
}

func TestScriptOriginAndReads(t *testing.T) {
	src := `
function on_tick(tick)
  patch.origin_entity(5)
  local h = world.get_handle("logo")
  local f = world.get_fixed("price")
  local j = world.get_json("meta")
  local missing = world.get_json("nope")
  patch.set_component(5, "seen", h .. "|" .. f .. "|" .. j .. "|" .. tostring(missing))
  patch.set_component(5, "next", tostring(world.next_entity()))
  patch.set_component(5, "hash", world.state_hash("ui."))
  patch.remove_component(5, "old")
end
`
	e, err := NewEngineFromSource(src, "s", nil)
	require.NoError(t, err)
	defer e.Close()

	w := world.New()
	w.SetResourceHandle("logo", 1)
	w.SetResourceFixed64("price", fixed.MustParse("2.5"))
	w.SetResourceJSON("meta", "{}")
	w.SetComponent(5, "old", "x")

	p, _, err := e.BuildPatch(w, 1)
	require.NoError(t, err)
	id, ok := p.Origin.Entity()
	require.True(t, ok)
	assert.Equal(t, ecs.EntityID(5), id)
	assert.Equal(t, patch.SetComponent{Entity: 5, Tag: "seen", Value: "#0100000000000000|2.5|{}|nil"}, p.Ops[0])
	assert.Equal(t, patch.SetComponent{Entity: 5, Tag: "next", Value: "6"}, p.Ops[1])
	assert.Equal(t, patch.SetComponent{Entity: 5, Tag: "hash", Value: w.StateHashExcluding([]string{"ui."}).Hex()}, p.Ops[2])
	assert.Equal(t, patch.RemoveComponent{Entity: 5, Tag: "old"}, p.Ops[3])
}

func TestScriptErrorsAreReturned(t *testing.T) {
	e, err := NewEngineFromSource(`function on_tick(t) patch.set_fixed("x", "not a number") end`, "s", nil)
	require.NoError(t, err)
	defer e.Close()

	_, ok, err := e.BuildPatch(world.New(), 1)
	assert.True(t, ok)
	assert.Error(t, err)

	_, err = NewEngineFromSource(`this is not lua`, "s", nil)
	assert.Error(t, err)
}

func TestNoTickFunction(t *testing.T) {
	e, err := NewEngineFromSource(`x = 1`, "s", nil)
	require.NoError(t, err)
	defer e.Close()
	assert.False(t, e.HasTick())

	_, ok, err := e.BuildPatch(world.New(), 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestWorldUnreadableOutsideTick(t *testing.T) {
	e, err := NewEngineFromSource(`function peek() return world.next_entity() end`, "s", nil)
	require.NoError(t, err)
	defer e.Close()
	assert.Error(t, e.vm.DoString(`peek()`))
}

func TestNewEngineLoadsDirectoryInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_base.lua"), []byte(`label = "base"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_tick.lua"),
		[]byte(`function on_tick(t) patch.set_json("label", label) end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	e, err := NewEngine(dir, "s", nil)
	require.NoError(t, err)
	defer e.Close()

	p, ok, err := e.BuildPatch(world.New(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []patch.Op{patch.SetResourceJSON{Key: "label", JSON: "base"}}, p.Ops)

	missing, err := NewEngine(filepath.Join(dir, "nope"), "s", nil)
	require.NoError(t, err)
	missing.Close()
}

func buildOnce(t *testing.T, body string) (patch.Patch, error) {
	t.Helper()
	e, err := NewEngineFromSource("function on_tick(tick)\n"+body+"\nend", "s", nil)
	require.NoError(t, err)
	defer e.Close()
	p, _, err := e.BuildPatch(world.New(), 1)
	return p, err
}

func TestMapKeysCollidingAfterConversionAreRejected(t *testing.T) {
	cases := map[string]string{
		// decomposed and precomposed 가
		"nfc": `local m = {} m["\225\132\128\225\133\161"] = "nfd" m["\234\176\128"] = "nfc" patch.set_value("m", m)`,
		// both truncate to fixed zero
		"fixed": `patch.set_value("m", {[1e-20] = "a", [2e-20] = "b"})`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			// fresh VMs hash their tables differently; every run must agree
			for i := 0; i < 20; i++ {
				_, err := buildOnce(t, body)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "collide")
			}
		})
	}
}

func TestMapConversionIsStableAcrossVMs(t *testing.T) {
	body := `patch.set_value("m", {["\234\176\128"] = 1, b = true, [-3] = "neg", [0.5] = "half"})`
	first, err := buildOnce(t, body)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		p, err := buildOnce(t, body)
		require.NoError(t, err)
		assert.Equal(t, first, p)
	}
	m := first.Ops[0].(patch.SetResourceValue).Value.(value.Map)
	assert.Equal(t, 4, m.Len())
}

func TestCyclicTableIsRejected(t *testing.T) {
	_, err := buildOnce(t, `local c = {} c.self = c patch.set_value("c", c)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "references itself")

	_, err = buildOnce(t, `local l = {} l[1] = l patch.emit("loop", {}, l)`)
	require.Error(t, err)

	// shared but acyclic references are fine
	p, err := buildOnce(t, `local s = {1, 2} patch.set_value("d", {a = s, b = s})`)
	require.NoError(t, err)
	d := p.Ops[0].(patch.SetResourceValue).Value.(value.Map)
	a, ok := d.Get(value.String("a"))
	require.True(t, ok)
	assert.Equal(t, value.NewList(value.FixedOf(fixed.FromInt(1)), value.FixedOf(fixed.FromInt(2))), a)
}

func TestMixedTableIsRejected(t *testing.T) {
	_, err := buildOnce(t, `patch.set_value("m", {1, x = 2})`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixes sequence and keyed entries")

	_, err = buildOnce(t, `patch.set_value("m", {{}, x = 2})`)
	require.Error(t, err)
}

func TestTableKeysMustBeScalar(t *testing.T) {
	_, err := buildOnce(t, `patch.set_value("m", {[{}] = 1})`)
	require.Error(t, err)
}

func TestEntityIDsMustBeIntegers(t *testing.T) {
	for _, id := range []string{"1.7", "-1", "2^70", "0/0"} {
		_, err := buildOnce(t, `patch.set_component(`+id+`, "t", "v")`)
		assert.Error(t, err, "id %s", id)
	}
	p, err := buildOnce(t, `patch.set_component(3, "t", "v")`)
	require.NoError(t, err)
	assert.Equal(t, patch.SetComponent{Entity: 3, Tag: "t", Value: "v"}, p.Ops[0])
}
