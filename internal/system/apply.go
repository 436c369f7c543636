package system

import (
	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/signal"
	coresys "github.com/seum-lang/worldcore/internal/core/system"
	"github.com/seum-lang/worldcore/internal/metrics"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/world"
)

// TickStats totals the patch results of one tick.
type TickStats struct {
	Patches    int
	Applied    int
	Vetoed     int
	Faults     int
	Signals    int
	Violations int
}

// ApplySystem applies every queued patch, in queue order, with the signal
// sink pointed at the bus. Phase 2 (Apply).
type ApplySystem struct {
	world   *world.World
	applier *patch.Applier
	queue   *PatchQueue
	sink    signal.Sink
	metrics *metrics.Engine // nil = no metrics
	log     *zap.Logger

	last TickStats
}

func NewApplySystem(w *world.World, applier *patch.Applier, queue *PatchQueue, sink signal.Sink, m *metrics.Engine, log *zap.Logger) *ApplySystem {
	if m != nil {
		sink = m.Sink(sink)
	}
	return &ApplySystem{
		world:   w,
		applier: applier,
		queue:   queue,
		sink:    sink,
		metrics: m,
		log:     log,
	}
}

func (s *ApplySystem) Phase() coresys.Phase { return coresys.PhaseApply }

func (s *ApplySystem) Update(tick uint64) error {
	s.last = TickStats{}
	for _, p := range s.queue.Drain() {
		res := s.applier.Apply(s.world, p, tick, s.sink)
		s.last.Patches++
		s.last.Applied += res.Applied
		s.last.Vetoed += res.Vetoed
		s.last.Faults += res.Faults
		s.last.Signals += res.Signals
		s.last.Violations += res.Violations
		if s.metrics != nil {
			s.metrics.ObservePatch(res)
		}
		if len(res.Frozen) > 0 {
			s.log.Info("entities frozen",
				zap.Uint64("tick", tick),
				zap.String("origin", p.Origin.String()),
				zap.Int("count", len(res.Frozen)))
		}
	}
	return nil
}

// LastTick returns the totals of the most recent Update.
func (s *ApplySystem) LastTick() TickStats { return s.last }

// TickSignals implements SignalCounter.
func (s *ApplySystem) TickSignals() int { return s.last.Signals }
