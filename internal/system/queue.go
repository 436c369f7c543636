package system

import "github.com/seum-lang/worldcore/internal/patch"

// PatchQueue carries the patches produced during one tick to the apply
// phase. Producers push in phase order; ApplySystem drains it.
type PatchQueue struct {
	patches []patch.Patch
}

func NewPatchQueue() *PatchQueue {
	return &PatchQueue{patches: make([]patch.Patch, 0, 8)}
}

func (q *PatchQueue) Push(p ...patch.Patch) {
	q.patches = append(q.patches, p...)
}

func (q *PatchQueue) Len() int { return len(q.patches) }

// Drain returns the queued patches in push order and empties the queue.
func (q *PatchQueue) Drain() []patch.Patch {
	out := q.patches
	q.patches = make([]patch.Patch, 0, cap(out))
	return out
}
