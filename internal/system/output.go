package system

import (
	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/signal"
	coresys "github.com/seum-lang/worldcore/internal/core/system"
)

// SignalSystem publishes the signals collected during the apply phase to
// bus subscribers. Phase 3 (Output).
type SignalSystem struct {
	bus *signal.Bus
	log *zap.Logger
}

// NewSignalSystem subscribes a debug logger for every signal.
func NewSignalSystem(bus *signal.Bus, log *zap.Logger) *SignalSystem {
	s := &SignalSystem{bus: bus, log: log}
	bus.SubscribeAll(s.logSignal)
	return s
}

func (s *SignalSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *SignalSystem) Update(tick uint64) error {
	s.bus.SwapBuffers()
	if n := s.bus.DispatchAll(); n > 0 {
		s.log.Debug("signals dispatched", zap.Uint64("tick", tick), zap.Int("count", n))
	}
	return nil
}

func (s *SignalSystem) logSignal(sig signal.Signal) {
	if !s.log.Core().Enabled(zap.DebugLevel) {
		return
	}
	fields := []zap.Field{
		zap.String("kind", sig.Kind.String()),
		zap.Uint64("tick", sig.TickID),
		zap.Uint64("seq", sig.Seq),
		zap.String("origin", sig.Origin),
	}
	if sig.Name != "" {
		fields = append(fields, zap.String("name", sig.Name), zap.Strings("targets", sig.Targets))
	}
	if sig.Reason != "" {
		fields = append(fields, zap.String("reason", sig.Reason))
	}
	if sig.SubReason != "" {
		fields = append(fields, zap.String("sub_reason", sig.SubReason))
	}
	if sig.HasEntity {
		fields = append(fields, zap.Uint64("entity", uint64(sig.Entity)))
	}
	if sig.Key != "" {
		fields = append(fields, zap.String("key", sig.Key))
	}
	s.log.Debug("signal", fields...)
}
