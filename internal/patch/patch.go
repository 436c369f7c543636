package patch

import (
	"fmt"
	"strconv"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
)

// Origin identifies who produced a patch: an entity or a named system.
type Origin struct {
	entity   ecs.EntityID
	system   string
	isEntity bool
}

func FromEntity(id ecs.EntityID) Origin { return Origin{entity: id, isEntity: true} }
func FromSystem(name string) Origin     { return Origin{system: name} }

// Entity returns the originating entity, if the origin is one.
func (o Origin) Entity() (ecs.EntityID, bool) { return o.entity, o.isEntity }

// System returns the system name, if the origin is a system.
func (o Origin) System() (string, bool) { return o.system, !o.isEntity }

func (o Origin) String() string {
	if o.isEntity {
		return "entity:" + strconv.FormatUint(uint64(o.entity), 10)
	}
	return "system:" + o.system
}

// Patch is one ordered batch of mutation intents. It is built fresh each
// tick and consumed by a single Apply.
type Patch struct {
	Origin Origin
	Ops    []Op
}

func New(origin Origin, ops ...Op) Patch {
	return Patch{Origin: origin, Ops: ops}
}

// Op is one mutation intent.
type Op interface {
	opName() string
}

type SetComponent struct {
	Entity ecs.EntityID
	Tag    ecs.Tag
	Value  string
}

type RemoveComponent struct {
	Entity ecs.EntityID
	Tag    ecs.Tag
}

type SetResourceJSON struct {
	Key  string
	JSON string
}

type SetResourceFixed64 struct {
	Key   string
	Value fixed.Fixed64
}

type SetResourceHandle struct {
	Key    string
	Handle value.Handle
}

type SetResourceValue struct {
	Key   string
	Value value.Value
}

// DivAssignResourceFixed64 divides a Fixed64 resource (zero if absent) by
// RHS. The resource is dimensionless, so RHS must be too.
type DivAssignResourceFixed64 struct {
	Key string
	RHS value.Unit
}

// EmitSignal forwards Signal to the sink after stamping tick and sequence.
type EmitSignal struct {
	Signal signal.Signal
}

// GuardViolation reports that Entity broke rule RuleID.
type GuardViolation struct {
	Entity ecs.EntityID
	RuleID string
}

func (SetComponent) opName() string             { return "set_component" }
func (RemoveComponent) opName() string          { return "remove_component" }
func (SetResourceJSON) opName() string          { return "set_resource_json" }
func (SetResourceFixed64) opName() string       { return "set_resource_fixed64" }
func (SetResourceHandle) opName() string        { return "set_resource_handle" }
func (SetResourceValue) opName() string         { return "set_resource_value" }
func (DivAssignResourceFixed64) opName() string { return "div_assign_resource_fixed64" }
func (EmitSignal) opName() string               { return "emit_signal" }
func (GuardViolation) opName() string           { return "guard_violation" }

// OpName returns the snake_case name of op, as used in scenario files.
func OpName(op Op) string {
	if op == nil {
		return "nil"
	}
	return op.opName()
}

// Describe renders op for logs.
func Describe(op Op) string {
	switch o := op.(type) {
	case SetComponent:
		return fmt.Sprintf("set_component %d.%s=%q", o.Entity, o.Tag, o.Value)
	case RemoveComponent:
		return fmt.Sprintf("remove_component %d.%s", o.Entity, o.Tag)
	case SetResourceJSON:
		return fmt.Sprintf("set_resource_json %s", o.Key)
	case SetResourceFixed64:
		return fmt.Sprintf("set_resource_fixed64 %s=%s", o.Key, o.Value)
	case SetResourceHandle:
		return fmt.Sprintf("set_resource_handle %s=%s", o.Key, o.Handle)
	case SetResourceValue:
		return fmt.Sprintf("set_resource_value %s=%s", o.Key, value.CanonKey(o.Value))
	case DivAssignResourceFixed64:
		return fmt.Sprintf("div_assign_resource_fixed64 %s/=%s", o.Key, value.CanonKey(o.RHS))
	case EmitSignal:
		return fmt.Sprintf("emit_signal %s", o.Signal.Name)
	case GuardViolation:
		return fmt.Sprintf("guard_violation %d rule=%s", o.Entity, o.RuleID)
	}
	return OpName(op)
}
