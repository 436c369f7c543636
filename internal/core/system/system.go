package system

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: queue scenario patches
	PhaseUpdate               // 1: program logic builds patches
	PhaseApply                // 2: apply queued patches to the world
	PhaseOutput               // 3: dispatch signals
	PhasePersist              // 4: record state hashes
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(tick uint64) error
}
