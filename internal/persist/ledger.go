package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned when a run id has no ledger entry.
var ErrRunNotFound = errors.New("replay run not found")

// TickHash is one ledger row: the state hashes after a tick was applied.
type TickHash struct {
	Tick         uint64
	StateHash    string
	FilteredHash string
	Signals      int
}

// Run is a replay run with its recorded ticks, ascending.
type Run struct {
	ID        uuid.UUID
	Scenario  string
	Excluded  []string
	FinalTick *int64
	FinalHash *string
	Ticks     []TickHash
}

// LedgerRepo stores per-tick state hashes so re-executions of a scenario
// can be checked against an earlier run.
type LedgerRepo struct {
	db *DB
}

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// StartRun creates a run row and returns its id.
func (r *LedgerRepo) StartRun(ctx context.Context, scenario string, excluded []string) (uuid.UUID, error) {
	id := uuid.New()
	if excluded == nil {
		excluded = []string{}
	}
	if _, err := r.db.Pool.Exec(ctx,
		`INSERT INTO replay_runs (run_id, scenario, excluded) VALUES ($1, $2, $3)`,
		id, scenario, excluded,
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	r.db.log.Debug("ledger run started", zap.String("run", id.String()), zap.String("scenario", scenario))
	return id, nil
}

// RecordBatch writes tick rows in a single transaction.
func (r *LedgerRepo) RecordBatch(ctx context.Context, runID uuid.UUID, rows []TickHash) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, h := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tick_hashes (run_id, tick, state_hash, filtered_hash, signals)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (run_id, tick) DO UPDATE
			 SET state_hash = EXCLUDED.state_hash, filtered_hash = EXCLUDED.filtered_hash, signals = EXCLUDED.signals`,
			runID, int64(h.Tick), h.StateHash, h.FilteredHash, h.Signals,
		); err != nil {
			return fmt.Errorf("ledger insert tick %d: %w", h.Tick, err)
		}
	}

	return tx.Commit(ctx)
}

// FinishRun stores the final tick and full state hash.
func (r *LedgerRepo) FinishRun(ctx context.Context, runID uuid.UUID, tick uint64, hash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE replay_runs SET final_tick = $2, final_hash = $3 WHERE run_id = $1`,
		runID, int64(tick), hash,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// LoadRun returns a run and all of its tick hashes.
func (r *LedgerRepo) LoadRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run := &Run{ID: runID}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT scenario, excluded, final_tick, final_hash FROM replay_runs WHERE run_id = $1`, runID,
	).Scan(&run.Scenario, &run.Excluded, &run.FinalTick, &run.FinalHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT tick, state_hash, filtered_hash, signals FROM tick_hashes WHERE run_id = $1 ORDER BY tick`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h TickHash
		var tick int64
		if err := rows.Scan(&tick, &h.StateHash, &h.FilteredHash, &h.Signals); err != nil {
			return nil, err
		}
		h.Tick = uint64(tick)
		run.Ticks = append(run.Ticks, h)
	}
	return run, rows.Err()
}
