package system

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	coresys "github.com/seum-lang/worldcore/internal/core/system"
	"github.com/seum-lang/worldcore/internal/persist"
	"github.com/seum-lang/worldcore/internal/world"
)

// TickRecord is the hash pair recorded after a tick.
type TickRecord struct {
	Tick         uint64
	StateHash    world.Digest
	FilteredHash world.Digest
	Signals      int
}

// HashRecorder stores tick records.
type HashRecorder interface {
	Record(r TickRecord) error
}

// SignalCounter reports how many signals the current tick produced.
type SignalCounter interface {
	TickSignals() int
}

// LedgerSystem hashes the world after every tick and hands the result to a
// HashRecorder. Phase 4 (Persist).
type LedgerSystem struct {
	world    *world.World
	rec      HashRecorder
	excluded []string
	counter  SignalCounter // optional
	log      *zap.Logger
}

func NewLedgerSystem(w *world.World, rec HashRecorder, excluded []string, counter SignalCounter, log *zap.Logger) *LedgerSystem {
	return &LedgerSystem{
		world:    w,
		rec:      rec,
		excluded: slices.Clone(excluded),
		counter:  counter,
		log:      log,
	}
}

func (s *LedgerSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *LedgerSystem) Update(tick uint64) error {
	r := TickRecord{
		Tick:         tick,
		StateHash:    s.world.StateHash(),
		FilteredHash: s.world.StateHashExcluding(s.excluded),
	}
	if s.counter != nil {
		r.Signals = s.counter.TickSignals()
	}
	if err := s.rec.Record(r); err != nil {
		return fmt.Errorf("record tick hash: %w", err)
	}
	return nil
}

// MemoryLedger keeps tick records in memory.
type MemoryLedger struct {
	records []TickRecord
}

func (m *MemoryLedger) Record(r TickRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *MemoryLedger) Records() []TickRecord { return slices.Clone(m.records) }

// PGLedger buffers tick records and writes them to Postgres in batches.
type PGLedger struct {
	repo  *persist.LedgerRepo
	run   uuid.UUID
	batch int
	buf   []persist.TickHash
	log   *zap.Logger
}

// NewPGLedger starts a ledger run for scenario.
func NewPGLedger(ctx context.Context, repo *persist.LedgerRepo, scenario string, excluded []string, batch int, log *zap.Logger) (*PGLedger, error) {
	run, err := repo.StartRun(ctx, scenario, excluded)
	if err != nil {
		return nil, err
	}
	if batch <= 0 {
		batch = 64
	}
	return &PGLedger{repo: repo, run: run, batch: batch, log: log}, nil
}

func (l *PGLedger) RunID() uuid.UUID { return l.run }

func (l *PGLedger) Record(r TickRecord) error {
	l.buf = append(l.buf, persist.TickHash{
		Tick:         r.Tick,
		StateHash:    r.StateHash.Hex(),
		FilteredHash: r.FilteredHash.Hex(),
		Signals:      r.Signals,
	})
	if len(l.buf) < l.batch {
		return nil
	}
	return l.Flush()
}

// Flush writes buffered records.
func (l *PGLedger) Flush() error {
	if len(l.buf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.repo.RecordBatch(ctx, l.run, l.buf); err != nil {
		return err
	}
	l.log.Debug("ledger flushed", zap.String("run", l.run.String()), zap.Int("ticks", len(l.buf)))
	l.buf = l.buf[:0]
	return nil
}

// Finish flushes and stores the run's final hash.
func (l *PGLedger) Finish(ctx context.Context, tick uint64, hash world.Digest) error {
	if err := l.Flush(); err != nil {
		return err
	}
	return l.repo.FinishRun(ctx, l.run, tick, hash.Hex())
}

// FirstDivergence compares a re-execution against a recorded run. It returns
// the first tick whose filtered hash differs or is missing on either side.
func FirstDivergence(want []persist.TickHash, got []TickRecord) (uint64, bool) {
	n := min(len(want), len(got))
	for i := 0; i < n; i++ {
		if want[i].Tick != got[i].Tick {
			return min(want[i].Tick, got[i].Tick), true
		}
		if want[i].FilteredHash != got[i].FilteredHash.Hex() {
			return got[i].Tick, true
		}
	}
	switch {
	case len(want) > n:
		return want[n].Tick, true
	case len(got) > n:
		return got[n].Tick, true
	}
	return 0, false
}
