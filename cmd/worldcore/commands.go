package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/config"
	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/data"
	"github.com/seum-lang/worldcore/internal/metrics"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/persist"
	"github.com/seum-lang/worldcore/internal/scripting"
	"github.com/seum-lang/worldcore/internal/system"
	"github.com/seum-lang/worldcore/internal/world"
)

var (
	configPath   string
	scenarioPath string
	scriptsDir   string
	ticks        uint64
	againstRun   string
	showBytes    bool

	rootCmd = &cobra.Command{
		Use:           "worldcore",
		Short:         "Deterministic world-state engine: replay patches and check state hashes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Run a scenario and/or Lua scripts for N ticks and print the final hashes",
		RunE:  runReplay,
	}

	hashCmd = &cobra.Command{
		Use:   "hash",
		Short: "Print the state hashes of a scenario's bootstrap state",
		RunE:  runHash,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Replay a scenario, check store invariants and compare against its expected hashes",
		RunE:  runVerify,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $WORLDCORE_CONFIG or "+defaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&scenarioPath, "scenario", "", "scenario YAML (overrides replay.scenario)")

	replayCmd.Flags().StringVar(&scriptsDir, "scripts", "", "Lua scripts directory (overrides replay.scripts_dir)")
	replayCmd.Flags().Uint64Var(&ticks, "ticks", 0, "ticks to run (0 = replay.ticks, then the scenario's last tick)")
	replayCmd.Flags().StringVar(&againstRun, "against", "", "ledger run id to compare tick hashes with")
	hashCmd.Flags().BoolVar(&showBytes, "bytes", false, "also dump the canonical byte stream as hex")
	verifyCmd.Flags().Uint64Var(&ticks, "ticks", 0, "ticks to run (0 = replay.ticks, then the scenario's last tick)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(verifyCmd)
}

// env is what every command needs after flags are parsed.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	scenario *data.Scenario // nil when no scenario file is configured
	excluded []string
}

func setup(needScenario bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg, log: log, excluded: cfg.Engine.ExcludedPrefixes}

	path := cfg.Replay.Scenario
	if scenarioPath != "" {
		path = scenarioPath
	}
	if path != "" {
		sc, err := data.LoadScenario(path)
		switch {
		case err == nil:
			e.scenario = sc
			if len(sc.ExcludedPrefixes) > 0 {
				e.excluded = sc.ExcludedPrefixes
			}
			log.Info("scenario loaded", zap.String("path", path), zap.String("name", sc.Name), zap.Uint64("last_tick", sc.LastTick()))
		case needScenario || scenarioPath != "" || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("load scenario: %w", err)
		}
	}
	if needScenario && e.scenario == nil {
		return nil, errors.New("no scenario configured")
	}
	return e, nil
}

func (e *env) applier() *patch.Applier {
	return patch.NewApplier(
		patch.WithLogger(e.log),
		patch.WithMarkerTags(ecs.Tag(e.cfg.Engine.RuleViolatedTag), ecs.Tag(e.cfg.Engine.DormantTag)),
	)
}

// lastTick picks the tick count: flag, then config, then the scenario.
func (e *env) lastTick() uint64 {
	if ticks > 0 {
		return ticks
	}
	if e.cfg.Replay.Ticks > 0 {
		return e.cfg.Replay.Ticks
	}
	if e.scenario != nil {
		return e.scenario.LastTick()
	}
	return 0
}

func runReplay(cmd *cobra.Command, _ []string) error {
	e, err := setup(false)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := e.cfg.Replay.ScriptsDir
	if scriptsDir != "" {
		dir = scriptsDir
	}
	var script *scripting.Engine
	if dir != "" {
		eng, err := scripting.NewEngine(dir, e.cfg.Replay.System, e.log)
		if err != nil {
			return fmt.Errorf("load scripts: %w", err)
		}
		defer eng.Close()
		if eng.HasTick() {
			script = eng
		}
	}

	var m *metrics.Engine
	if e.cfg.Metrics.Enabled {
		m = metrics.New(nil)
		srv := &http.Server{Addr: e.cfg.Metrics.Listen, Handler: m.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.log.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
		e.log.Info("metrics listening", zap.String("addr", e.cfg.Metrics.Listen))
	}

	var (
		rec    system.HashRecorder
		pg     *system.PGLedger
		ledger *persist.LedgerRepo
	)
	if e.cfg.Database.Enabled {
		db, err := persist.Open(ctx, e.cfg.Database, e.log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		ledger = persist.NewLedgerRepo(db)
		name := scenarioName(e.scenario)
		pg, err = system.NewPGLedger(ctx, ledger, name, e.excluded, 0, e.log)
		if err != nil {
			return fmt.Errorf("start ledger run: %w", err)
		}
		rec = pg
	}
	mem := &system.MemoryLedger{}
	if rec == nil {
		rec = mem
	} else {
		rec = multiRecorder{pg, mem}
	}

	r, err := system.NewReplay(system.ReplayOptions{
		Scenario: e.scenario,
		Script:   script,
		Applier:  e.applier(),
		Metrics:  m,
		Recorder: rec,
		Excluded: e.excluded,
		Log:      e.log,
	})
	if err != nil {
		return err
	}

	last := e.lastTick()
	start := time.Now()
	if err := r.Run(ctx, last); err != nil {
		return fmt.Errorf("replay stopped at tick %d: %w", r.CurrentTick(), err)
	}
	full := r.World.StateHash()
	filtered := r.World.StateHashExcluding(e.excluded)
	e.log.Info("replay finished", zap.Uint64("ticks", r.CurrentTick()), zap.Duration("elapsed", time.Since(start)))

	printSection("리플레이")
	printField("ticks", fmt.Sprint(r.CurrentTick()))
	printField("entities", fmt.Sprint(r.World.EntityCount()))
	printField("state hash", full.Hex())
	printField("filtered", filtered.Hex())

	if pg != nil {
		if err := pg.Finish(ctx, r.CurrentTick(), full); err != nil {
			return fmt.Errorf("finish ledger run: %w", err)
		}
		printField("ledger run", pg.RunID().String())
	}

	if againstRun != "" {
		if ledger == nil {
			return errors.New("--against needs database.enabled")
		}
		id, err := uuid.Parse(againstRun)
		if err != nil {
			return fmt.Errorf("parse run id: %w", err)
		}
		prev, err := ledger.LoadRun(ctx, id)
		if err != nil {
			return err
		}
		if tick, diverged := system.FirstDivergence(prev.Ticks, mem.Records()); diverged {
			return fmt.Errorf("diverged from run %s at tick %d", id, tick)
		}
		printOK("matches run " + id.String())
	}
	return nil
}

func runHash(cmd *cobra.Command, _ []string) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	w := world.New()
	if err := e.scenario.Bootstrap(w); err != nil {
		return err
	}
	printSection(scenarioName(e.scenario))
	printField("entities", fmt.Sprint(w.EntityCount()))
	printField("state hash", w.StateHash().Hex())
	printField("filtered", w.StateHashExcluding(e.excluded).Hex())
	if showBytes {
		fmt.Println(hex.Dump(w.CanonicalBytes(nil)))
	}
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.log.Sync()

	r, err := system.NewReplay(system.ReplayOptions{
		Scenario: e.scenario,
		Applier:  e.applier(),
		Excluded: e.excluded,
		Log:      e.log,
	})
	if err != nil {
		return err
	}
	if err := r.Run(cmd.Context(), e.lastTick()); err != nil {
		return err
	}

	printSection("검증")
	if err := r.World.Store().CheckInvariants(); err != nil {
		return fmt.Errorf("store invariants: %w", err)
	}
	printOK("store invariants hold")

	checks := []struct {
		label string
		get   func() (world.Digest, bool)
		got   world.Digest
	}{
		{"state hash", e.scenario.ExpectedHash, r.World.StateHash()},
		{"filtered hash", e.scenario.ExpectedFilteredHash, r.World.StateHashExcluding(e.excluded)},
	}
	for _, c := range checks {
		want, ok := c.get()
		if !ok {
			printField(c.label, c.got.Hex()+" (no expectation)")
			continue
		}
		if want != c.got {
			return fmt.Errorf("%s mismatch: want %s, got %s", c.label, want.Hex(), c.got.Hex())
		}
		printOK(c.label + " " + c.got.Hex())
	}
	return nil
}

func scenarioName(sc *data.Scenario) string {
	if sc == nil || sc.Name == "" {
		return "scripts"
	}
	return sc.Name
}

// multiRecorder records into every recorder in order.
type multiRecorder []system.HashRecorder

func (m multiRecorder) Record(r system.TickRecord) error {
	for _, rec := range m {
		if err := rec.Record(r); err != nil {
			return err
		}
	}
	return nil
}
