package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
	"github.com/seum-lang/worldcore/internal/world"
)

func TestEmptyPatchChangesNothing(t *testing.T) {
	w := world.New()
	w.SetComponent(1, "a", "b")
	before := w.StateHash()

	var rec signal.Recorder
	res := Apply(w, New(FromSystem("s")), 1, &rec)
	assert.Equal(t, before, w.StateHash())
	assert.Equal(t, 0, rec.Len())
	assert.Equal(t, Result{}, res)
}

func TestOpOrderDoesNotAffectHash(t *testing.T) {
	ops := []Op{
		SetComponent{Entity: 1, Tag: "hp", Value: "10"},
		SetComponent{Entity: 2, Tag: "hp", Value: "7"},
		SetComponent{Entity: 1, Tag: "name", Value: "곰"},
		SetResourceFixed64{Key: "gold", Value: fixed.FromInt(5)},
		SetResourceJSON{Key: "meta", JSON: `{"v":1}`},
		SetResourceHandle{Key: "sprite", Handle: 9},
		SetResourceValue{Key: "tags", Value: value.NewSet(value.String("a"), value.String("b"))},
	}
	a := world.New()
	Apply(a, New(FromSystem("s"), ops...), 1, nil)

	reversed := make([]Op, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		reversed = append(reversed, ops[i])
	}
	reversed[0] = SetResourceValue{Key: "tags", Value: value.NewSet(value.String("b"), value.String("a"))}
	b := world.New()
	Apply(b, New(FromSystem("other"), reversed...), 99, nil)

	assert.Equal(t, a.StateHash(), b.StateHash())
}

func TestGuardViolationAgainstOtherEntityDoesNotVeto(t *testing.T) {
	w := world.New()
	var rec signal.Recorder
	p := New(FromSystem("s"),
		GuardViolation{Entity: 1, RuleID: "R1"},
		SetComponent{Entity: 2, Tag: "x", Value: "applied"},
	)
	res := Apply(w, p, 3, &rec)

	v, ok := w.GetComponent(2, "x")
	require.True(t, ok)
	assert.Equal(t, "applied", v)
	assert.Equal(t, 0, res.Vetoed)
	assert.Equal(t, []ecs.EntityID{1}, res.Frozen)

	for _, tag := range []ecs.Tag{TagRuleViolated, TagDormant} {
		m, ok := w.GetComponent(1, tag)
		require.True(t, ok, tag)
		assert.Equal(t, MarkerValue, m)
	}

	diags := rec.OfKind(signal.KindDiag)
	require.Len(t, diags, 1)
	assert.Equal(t, signal.ReasonRuleViolation, diags[0].Reason)
	assert.Equal(t, "R1", diags[0].RuleID)
	assert.Equal(t, ecs.EntityID(1), diags[0].Entity)
	assert.Equal(t, uint64(3), diags[0].TickID)
	assert.Equal(t, uint64(0), diags[0].Seq)
}

func TestSelfViolationVetoesOwnAssignments(t *testing.T) {
	w := world.New()
	w.SetComponent(5, "pos", "0,0")
	w.SetResourceFixed64("pool", fixed.FromInt(9))

	var rec signal.Recorder
	p := New(FromEntity(5),
		SetComponent{Entity: 5, Tag: "pos", Value: "9,9"},
		RemoveComponent{Entity: 5, Tag: "pos"},
		SetResourceJSON{Key: "j", JSON: "{}"},
		SetResourceFixed64{Key: "f", Value: fixed.One},
		SetResourceHandle{Key: "h", Handle: 1},
		SetResourceValue{Key: "v", Value: value.Bool(true)},
		GuardViolation{Entity: 5, RuleID: "no-teleport"},
		GuardViolation{Entity: 5, RuleID: "again"},
		DivAssignResourceFixed64{Key: "pool", RHS: value.Unit{Amount: fixed.FromInt(3)}},
		EmitSignal{Signal: signal.Signal{Kind: signal.KindCustom, Name: "moved"}},
	)
	res := Apply(w, p, 1, &rec)

	pos, _ := w.GetComponent(5, "pos")
	assert.Equal(t, "0,0", pos)
	for _, k := range []string{"j", "f", "h", "v"} {
		_, ok1 := w.GetResourceJSON(k)
		_, ok2 := w.GetResourceFixed64(k)
		_, ok3 := w.GetResourceHandle(k)
		_, ok4 := w.GetResourceValue(k)
		assert.False(t, ok1 || ok2 || ok3 || ok4, k)
	}
	marker, _ := w.GetComponent(5, TagDormant)
	assert.Equal(t, MarkerValue, marker)

	// division is never vetoed
	pool, _ := w.GetResourceFixed64("pool")
	assert.Equal(t, fixed.FromInt(3), pool)

	assert.Equal(t, 6, res.Vetoed)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Violations)
	assert.Equal(t, []ecs.EntityID{5}, res.Frozen)

	sigs := rec.Signals()
	require.Len(t, sigs, 3)
	for i, s := range sigs {
		assert.Equal(t, uint64(i), s.Seq)
	}
	assert.Equal(t, "moved", sigs[2].Name)
	assert.Equal(t, []string{signal.DefaultTarget}, sigs[2].Targets)
	assert.Equal(t, "entity:5", sigs[2].Origin)
}

func TestDivisionByZeroDoesNotMutate(t *testing.T) {
	w := world.New()
	w.SetResourceFixed64("rate", fixed.MustParse("7.5"))
	var rec signal.Recorder

	res := Apply(w, New(FromSystem("econ"),
		DivAssignResourceFixed64{Key: "rate", RHS: value.Unit{}},
	), 4, &rec)

	v, _ := w.GetResourceFixed64("rate")
	assert.Equal(t, fixed.MustParse("7.5"), v)
	assert.Equal(t, 1, res.Faults)
	assert.Equal(t, 0, res.Applied)

	faults := rec.OfKind(signal.KindArithmeticFault)
	diags := rec.OfKind(signal.KindDiag)
	require.Len(t, faults, 1)
	require.Len(t, diags, 1)
	assert.Equal(t, signal.ReasonArithFault, diags[0].Reason)
	assert.Equal(t, signal.SubReasonDiv0, diags[0].SubReason)
	assert.Equal(t, "rate", diags[0].Key)
	assert.Equal(t, uint64(0), faults[0].Seq)
	assert.Equal(t, uint64(1), diags[0].Seq)
}

func TestDivisionDimMismatch(t *testing.T) {
	w := world.New()
	w.SetResourceFixed64("x", fixed.FromInt(8))
	var rec signal.Recorder

	Apply(w, New(FromEntity(2),
		DivAssignResourceFixed64{Key: "x", RHS: value.Unit{Amount: fixed.FromInt(2), Dim: "KRW"}},
		SetComponent{Entity: 2, Tag: "after", Value: "yes"},
	), 1, &rec)

	v, _ := w.GetResourceFixed64("x")
	assert.Equal(t, fixed.FromInt(8), v)
	after, ok := w.GetComponent(2, "after")
	require.True(t, ok, "ops after a fault still run")
	assert.Equal(t, "yes", after)

	diags := rec.OfKind(signal.KindDiag)
	require.Len(t, diags, 1)
	assert.Equal(t, signal.ReasonUnitMismatch, diags[0].Reason)
	assert.Equal(t, signal.SubReasonDimMismatch, diags[0].SubReason)
	assert.True(t, diags[0].HasEntity)
	assert.Equal(t, ecs.EntityID(2), diags[0].Entity)
}

func TestDivisionOfAbsentResourceDefaultsToZero(t *testing.T) {
	w := world.New()
	res := Apply(w, New(FromSystem("s"),
		DivAssignResourceFixed64{Key: "new", RHS: value.Unit{Amount: fixed.FromInt(4)}},
	), 1, nil)
	v, ok := w.GetResourceFixed64("new")
	require.True(t, ok)
	assert.True(t, v.IsZero())
	assert.Equal(t, 1, res.Applied)
}

func TestDivisionOverflowReportsFault(t *testing.T) {
	w := world.New()
	w.SetResourceFixed64("big", fixed.FromInt(1<<30))
	var rec signal.Recorder
	Apply(w, New(FromSystem("s"),
		DivAssignResourceFixed64{Key: "big", RHS: value.Unit{Amount: fixed.FromRaw(1)}},
	), 1, &rec)

	v, _ := w.GetResourceFixed64("big")
	assert.Equal(t, fixed.FromInt(1<<30), v)
	diags := rec.OfKind(signal.KindDiag)
	require.Len(t, diags, 1)
	assert.Equal(t, signal.SubReasonOverflow, diags[0].SubReason)
}

func TestEmitSignalRestamps(t *testing.T) {
	w := world.New()
	var rec signal.Recorder
	Apply(w, New(FromSystem("ui"),
		EmitSignal{Signal: signal.Signal{Kind: signal.KindCustom, Name: "a", TickID: 999, Seq: 42, Targets: []string{"hud", "log"}}},
		EmitSignal{Signal: signal.Signal{Kind: signal.KindCustom, Name: "b", Origin: "custom"}},
	), 12, &rec)

	sigs := rec.Signals()
	require.Len(t, sigs, 2)
	assert.Equal(t, uint64(12), sigs[0].TickID)
	assert.Equal(t, uint64(0), sigs[0].Seq)
	assert.Equal(t, []string{"hud", "log"}, sigs[0].Targets)
	assert.Equal(t, "system:ui", sigs[0].Origin)
	assert.Equal(t, uint64(1), sigs[1].Seq)
	assert.Equal(t, []string{"unknown"}, sigs[1].Targets)
	assert.Equal(t, "custom", sigs[1].Origin)
}

func TestSequenceRestartsEachCall(t *testing.T) {
	w := world.New()
	var rec signal.Recorder
	p := New(FromSystem("s"), EmitSignal{Signal: signal.Signal{Kind: signal.KindCustom}})
	Apply(w, p, 1, &rec)
	Apply(w, p, 2, &rec)
	sigs := rec.Signals()
	require.Len(t, sigs, 2)
	assert.Equal(t, uint64(0), sigs[0].Seq)
	assert.Equal(t, uint64(0), sigs[1].Seq)
}

func TestCustomMarkerTags(t *testing.T) {
	w := world.New()
	a := NewApplier(WithLogger(zap.NewNop()), WithMarkerTags("violated", "frozen"))
	a.Apply(w, New(FromSystem("s"), GuardViolation{Entity: 3, RuleID: "r"}), 1, nil)

	_, ok := w.GetComponent(3, "violated")
	assert.True(t, ok)
	_, ok = w.GetComponent(3, "frozen")
	assert.True(t, ok)
	_, ok = w.GetComponent(3, TagDormant)
	assert.False(t, ok)
}

func TestOriginAndDescribe(t *testing.T) {
	id, ok := FromEntity(4).Entity()
	assert.True(t, ok)
	assert.Equal(t, ecs.EntityID(4), id)
	name, ok := FromSystem("clock").System()
	assert.True(t, ok)
	assert.Equal(t, "clock", name)
	assert.Equal(t, "system:clock", FromSystem("clock").String())

	assert.Equal(t, "guard_violation", OpName(GuardViolation{}))
	assert.Equal(t, `set_component 1.a="b"`, Describe(SetComponent{Entity: 1, Tag: "a", Value: "b"}))
}
