package system

import (
	"go.uber.org/zap"

	coresys "github.com/seum-lang/worldcore/internal/core/system"
	"github.com/seum-lang/worldcore/internal/scripting"
	"github.com/seum-lang/worldcore/internal/world"
)

// ScriptSystem asks the Lua engine for this tick's patch. Scripts only read
// the world; their writes go through the queue. Phase 1 (Update).
type ScriptSystem struct {
	eng   *scripting.Engine
	world *world.World
	queue *PatchQueue
	log   *zap.Logger
}

func NewScriptSystem(eng *scripting.Engine, w *world.World, queue *PatchQueue, log *zap.Logger) *ScriptSystem {
	return &ScriptSystem{eng: eng, world: w, queue: queue, log: log}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(tick uint64) error {
	p, ok, err := s.eng.BuildPatch(s.world, tick)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.log.Debug("script patch",
		zap.Uint64("tick", tick),
		zap.String("origin", p.Origin.String()),
		zap.Int("ops", len(p.Ops)))
	s.queue.Push(p)
	return nil
}
