package patch

import (
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
	"github.com/seum-lang/worldcore/internal/world"
)

// Marker components set on an entity that broke a guard rule. Both hold
// MarkerValue and stay set after the patch, vetoed or not.
const (
	TagRuleViolated ecs.Tag = "규칙위반"
	TagDormant      ecs.Tag = "휴면"
	MarkerValue             = "true"
)

// Result summarises one Apply call.
type Result struct {
	Applied    int // mutating ops that changed the world
	Vetoed     int // mutating ops suppressed by a self-violation
	Faults     int // failed divisions
	Signals    int // signals delivered to the sink
	Violations int // GuardViolation ops seen
	Frozen     []ecs.EntityID
}

// Applier applies patches to a world. It keeps no state between calls.
type Applier struct {
	log        *zap.Logger
	ruleTag    ecs.Tag
	dormantTag ecs.Tag
}

type Option func(*Applier)

func WithLogger(log *zap.Logger) Option {
	return func(a *Applier) { a.log = log }
}

// WithMarkerTags overrides the component tags written on violators.
func WithMarkerTags(ruleViolated, dormant ecs.Tag) Option {
	return func(a *Applier) {
		a.ruleTag = ruleViolated
		a.dormantTag = dormant
	}
}

func NewApplier(opts ...Option) *Applier {
	a := &Applier{
		log:        zap.NewNop(),
		ruleTag:    TagRuleViolated,
		dormantTag: TagDormant,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultApplier = NewApplier()

// Apply applies p with the default Applier.
func Apply(w *world.World, p Patch, tickID uint64, sink signal.Sink) Result {
	return defaultApplier.Apply(w, p, tickID, sink)
}

// Apply runs the patch against w:
//
//  1. every GuardViolation emits a Diag and is recorded;
//  2. violators get the rule-violated and dormant markers;
//  3. if the origin entity is itself a violator, its other mutating ops are
//     vetoed;
//  4. the remaining ops run in order. DivAssignResourceFixed64 is never
//     vetoed and only writes on success; EmitSignal is forwarded re-stamped.
//
// Nothing here panics on bad input: faults are reported to sink and the
// rest of the patch still runs. Signal sequence numbers start at zero.
func (a *Applier) Apply(w *world.World, p Patch, tickID uint64, sink signal.Sink) Result {
	if sink == nil {
		sink = signal.Discard
	}
	var res Result
	var seq uint64
	origin := p.Origin.String()
	emit := func(s signal.Signal) {
		s.TickID = tickID
		s.Seq = seq
		if s.Origin == "" {
			s.Origin = origin
		}
		seq++
		res.Signals++
		sink.Receive(s)
	}

	var violated []ecs.EntityID
	for _, op := range p.Ops {
		gv, ok := op.(GuardViolation)
		if !ok {
			continue
		}
		emit(signal.Signal{
			Kind:   signal.KindDiag,
			Reason: signal.ReasonRuleViolation,
			RuleID: gv.RuleID,
		}.ForEntity(gv.Entity))
		violated = append(violated, gv.Entity)
	}
	res.Violations = len(violated)

	skip := false
	if len(violated) > 0 {
		frozen := slices.Clone(violated)
		slices.Sort(frozen)
		frozen = slices.Compact(frozen)
		for _, id := range frozen {
			w.SetComponent(id, a.ruleTag, MarkerValue)
			w.SetComponent(id, a.dormantTag, MarkerValue)
		}
		res.Frozen = frozen
		if id, ok := p.Origin.Entity(); ok {
			_, skip = slices.BinarySearch(frozen, id)
		}
		if skip {
			a.log.Debug("patch vetoed by own guard violation",
				zap.Uint64("tick", tickID),
				zap.String("origin", origin),
			)
		}
	}

	for _, op := range p.Ops {
		switch o := op.(type) {
		case SetComponent:
			if vetoed(skip, &res) {
				continue
			}
			w.SetComponent(o.Entity, o.Tag, o.Value)
		case RemoveComponent:
			if vetoed(skip, &res) {
				continue
			}
			w.RemoveComponent(o.Entity, o.Tag)
		case SetResourceJSON:
			if vetoed(skip, &res) {
				continue
			}
			w.SetResourceJSON(o.Key, o.JSON)
		case SetResourceFixed64:
			if vetoed(skip, &res) {
				continue
			}
			w.SetResourceFixed64(o.Key, o.Value)
		case SetResourceHandle:
			if vetoed(skip, &res) {
				continue
			}
			w.SetResourceHandle(o.Key, o.Handle)
		case SetResourceValue:
			if vetoed(skip, &res) {
				continue
			}
			w.SetResourceValue(o.Key, o.Value)
		case DivAssignResourceFixed64:
			cur, _ := w.GetResourceFixed64(o.Key)
			q, err := value.DivUnit(value.Unit{Amount: cur}, o.RHS)
			if err != nil {
				res.Faults++
				a.fault(p.Origin, o, err, tickID, emit)
				continue
			}
			w.SetResourceFixed64(o.Key, q.Amount)
		case EmitSignal:
			s := o.Signal
			if len(s.Targets) == 0 {
				s.Targets = []string{signal.DefaultTarget}
			} else {
				s.Targets = slices.Clone(s.Targets)
			}
			emit(s)
			continue
		default:
			// GuardViolation was handled above; unknown ops are ignored.
			continue
		}
		res.Applied++
	}
	return res
}

func vetoed(skip bool, res *Result) bool {
	if skip {
		res.Vetoed++
	}
	return skip
}

func (a *Applier) fault(origin Origin, op DivAssignResourceFixed64, err error, tickID uint64, emit func(signal.Signal)) {
	reason, sub := signal.ReasonArithFault, signal.SubReasonDiv0
	switch {
	case errors.Is(err, value.ErrDimMismatch):
		reason, sub = signal.ReasonUnitMismatch, signal.SubReasonDimMismatch
	case errors.Is(err, fixed.ErrOverflow):
		sub = signal.SubReasonOverflow
	}
	base := signal.Signal{Key: op.Key, Reason: reason, SubReason: sub}
	if id, ok := origin.Entity(); ok {
		base = base.ForEntity(id)
	}

	faultSig := base
	faultSig.Kind = signal.KindArithmeticFault
	emit(faultSig)

	diag := base
	diag.Kind = signal.KindDiag
	emit(diag)

	a.log.Debug("division fault",
		zap.Uint64("tick", tickID),
		zap.String("key", op.Key),
		zap.String("reason", reason),
		zap.String("sub_reason", sub),
		zap.Error(err),
	)
}
