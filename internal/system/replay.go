package system

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/signal"
	coresys "github.com/seum-lang/worldcore/internal/core/system"
	"github.com/seum-lang/worldcore/internal/data"
	"github.com/seum-lang/worldcore/internal/metrics"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/scripting"
	"github.com/seum-lang/worldcore/internal/world"
)

// ErrNoSource is returned when a replay has neither a scenario nor a script.
var ErrNoSource = errors.New("replay needs a scenario or a script")

// ReplayOptions wires a Replay. Scenario and Script are each optional but
// at least one is required.
type ReplayOptions struct {
	Scenario *data.Scenario
	Script   *scripting.Engine
	Applier  *patch.Applier  // nil = patch defaults
	Metrics  *metrics.Engine // nil = no metrics
	Recorder HashRecorder    // nil = in-memory ledger
	Excluded []string
	Log      *zap.Logger
}

// Replay drives a world through ticks 1..N with the phase runner.
type Replay struct {
	World  *world.World
	Bus    *signal.Bus
	Ledger HashRecorder

	runner  *coresys.Runner
	apply   *ApplySystem
	metrics *metrics.Engine
	log     *zap.Logger
	tick    uint64
}

// NewReplay bootstraps a fresh world from the scenario and registers the
// systems in phase order.
func NewReplay(opts ReplayOptions) (*Replay, error) {
	if opts.Scenario == nil && opts.Script == nil {
		return nil, ErrNoSource
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	applier := opts.Applier
	if applier == nil {
		applier = patch.NewApplier(patch.WithLogger(log))
	}
	rec := opts.Recorder
	if rec == nil {
		rec = &MemoryLedger{}
	}

	w := world.New()
	if opts.Scenario != nil {
		if err := opts.Scenario.Bootstrap(w); err != nil {
			return nil, fmt.Errorf("bootstrap world: %w", err)
		}
	}

	r := &Replay{
		World:   w,
		Bus:     signal.NewBus(),
		Ledger:  rec,
		runner:  coresys.NewRunner(),
		metrics: opts.Metrics,
		log:     log,
	}
	queue := NewPatchQueue()
	if opts.Scenario != nil {
		r.runner.Register(NewScenarioSystem(opts.Scenario, queue))
	}
	if opts.Script != nil {
		r.runner.Register(NewScriptSystem(opts.Script, w, queue, log))
	}
	r.apply = NewApplySystem(w, applier, queue, r.Bus, opts.Metrics, log)
	r.runner.Register(r.apply)
	r.runner.Register(NewSignalSystem(r.Bus, log))
	r.runner.Register(NewLedgerSystem(w, rec, opts.Excluded, r.apply, log))
	return r, nil
}

// Tick advances one tick.
func (r *Replay) Tick() error {
	next := r.tick + 1
	if err := r.runner.Tick(next); err != nil {
		return err
	}
	r.tick = next
	if r.metrics != nil {
		r.metrics.TicksTotal.Inc()
	}
	return nil
}

// Run advances ticks until CurrentTick reaches last or ctx is cancelled.
func (r *Replay) Run(ctx context.Context, last uint64) error {
	for r.tick < last {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Tick(); err != nil {
			return err
		}
		st := r.apply.LastTick()
		if st.Patches > 0 {
			r.log.Debug("tick applied",
				zap.Uint64("tick", r.tick),
				zap.Int("patches", st.Patches),
				zap.Int("applied", st.Applied),
				zap.Int("vetoed", st.Vetoed),
				zap.Int("faults", st.Faults),
				zap.Int("signals", st.Signals))
		}
	}
	return nil
}

// CurrentTick is the last completed tick; zero before the first.
func (r *Replay) CurrentTick() uint64 { return r.tick }

// LastTickStats returns the patch totals of the last completed tick.
func (r *Replay) LastTickStats() TickStats { return r.apply.LastTick() }
