package system

import (
	coresys "github.com/seum-lang/worldcore/internal/core/system"
	"github.com/seum-lang/worldcore/internal/data"
)

// ScenarioSystem queues the scenario's patches scheduled for the current
// tick. Phase 0 (Input).
type ScenarioSystem struct {
	scn   *data.Scenario
	queue *PatchQueue
}

func NewScenarioSystem(scn *data.Scenario, queue *PatchQueue) *ScenarioSystem {
	return &ScenarioSystem{scn: scn, queue: queue}
}

func (s *ScenarioSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ScenarioSystem) Update(tick uint64) error {
	s.queue.Push(s.scn.PatchesFor(tick)...)
	return nil
}
