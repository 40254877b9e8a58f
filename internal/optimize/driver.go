package optimize

import (
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/hints"
	"github.com/cwbudde/chainopt/internal/options"
	"github.com/cwbudde/chainopt/internal/solver"
	"github.com/cwbudde/chainopt/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRenderInterval is the progress polling cadence.
const DefaultRenderInterval = 500 * time.Millisecond

// Configuration is what the driver needs from a chain configuration: the
// solver's view plus persistence.
type Configuration interface {
	solver.Configuration
	Path() string
	Save() error
}

// RecordStore persists run records. RunDir locates the directory holding a
// run's trace file.
type RecordStore interface {
	store.Store
	RunDir(runID string) string
}

// Driver runs one optimize action at a time.
type Driver struct {
	Solver   solver.Service
	Registry *solver.Registry
	Loader   *hints.Loader

	// Out receives progress and result lines.
	Out io.Writer

	RenderInterval time.Duration
	Seed           int64

	// Records, when set, receives a record per run; Trace additionally
	// writes every rendered progress snapshot.
	Records RecordStore
	Trace   bool

	Logger *zap.Logger
}

type outcome struct {
	status solver.Status
	err    error
}

// Run optimizes cfg as described by action. The progress token is shared
// with the solver, which writes it, and the interrupt bridge, which may
// cancel it; Run only reads it. The configuration is saved only when the
// solver reports an improvement and no cancellation was requested.
func (d *Driver) Run(cfg Configuration, action options.Descriptor, progress *solver.Progress) error {
	logger := d.logger()
	out := d.Out
	if out == nil {
		out = os.Stdout
	}

	if len(action.Targets) == 0 {
		return exitcode.Errorf(exitcode.NoTargets, "no parameters to optimize, use --%s", options.FlagParameter)
	}

	size, err := ComputeParameterSize(cfg, action.Targets)
	if err != nil {
		return err
	}

	seeds, err := d.mergeHints(action, size)
	if err != nil {
		return err
	}

	rec := d.startRecord(cfg, action, len(seeds))
	tracer := d.openTrace(rec)

	params := solver.Params{
		PopulationSize:  action.PopulationSize,
		GenerationCount: action.GenerationCount,
		Seed:            d.Seed,
	}

	logger.Info("Starting optimization",
		zap.String("config", cfg.Path()),
		zap.String("solver", solver.FormatID(action.SolverID)),
		zap.Int("dimension", size),
		zap.Int("hints", len(seeds)),
	)
	start := time.Now()

	done := make(chan outcome, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		status, err := d.Solver.Optimize(cfg, action.Targets, action.SolverID, params, seeds, progress)
		done <- outcome{status: status, err: err}
	}()

	r := newRenderer(out, tracer, logger)
	interval := d.RenderInterval
	if interval <= 0 {
		interval = DefaultRenderInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var result outcome
wait:
	for {
		select {
		case result = <-done:
			break wait
		case <-ticker.C:
			r.render(progress)
		}
	}

	if tracer != nil {
		if err := tracer.Close(); err != nil {
			logger.Warn("Failed to close progress trace", zap.Error(err))
		}
	}

	logger.Info("Solver finished",
		zap.Stringer("status", result.status),
		zap.Duration("elapsed", time.Since(start)),
		zap.Uint64("evaluations", progress.Current()),
	)

	runErr := d.classify(cfg, result, progress, rec, out)
	d.finishRecord(cfg, action.Targets, rec, result.status, progress, runErr)
	return runErr
}

func (d *Driver) classify(cfg Configuration, result outcome, progress *solver.Progress, rec *store.Record, out io.Writer) error {
	if progress.Cancelled() {
		if result.status != solver.StatusCancelled {
			d.logger().Info("Solver completed after cancellation was requested", zap.Stringer("status", result.status))
		}
		return exitcode.Errorf(exitcode.Cancelled, "optimization cancelled")
	}

	switch result.status {
	case solver.StatusImproved:
		fmt.Fprintln(out, "Resulting fitness:")
		best := progress.BestFitness()
		for i, v := range best {
			if !math.IsNaN(v) {
				fmt.Fprintf(out, "  %d: %g\n", i, v)
			}
		}
		if err := cfg.Save(); err != nil {
			return exitcode.New(exitcode.Save, fmt.Errorf("failed to save configuration %s: %w", cfg.Path(), err))
		}
		if rec != nil {
			rec.Saved = true
		}
		fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
		return nil
	case solver.StatusNotImproved:
		return exitcode.Errorf(exitcode.NoImprovement, "solver did not improve the solution")
	case solver.StatusCancelled:
		return exitcode.Errorf(exitcode.Cancelled, "optimization cancelled")
	default:
		if result.err != nil {
			return exitcode.New(exitcode.OptimizationFailed, fmt.Errorf("optimization failed (%s): %w", result.status, result.err))
		}
		return exitcode.Errorf(exitcode.OptimizationFailed, "optimization failed (%s)", result.status)
	}
}

// mergeHints loads plain hints, then parameter-file hints, in pattern order.
func (d *Driver) mergeHints(action options.Descriptor, size int) ([][]float64, error) {
	loader := d.Loader
	if loader == nil {
		loader = hints.NewLoader(d.logger())
	}

	var acc []hints.Vector
	if err := loader.Load(action.Hints, size, false, &acc); err != nil {
		return nil, exitcode.New(exitcode.HintSource, err)
	}
	if err := loader.Load(action.ParameterHints, size, true, &acc); err != nil {
		return nil, exitcode.New(exitcode.HintSource, err)
	}

	seeds := make([][]float64, len(acc))
	for i, v := range acc {
		seeds[i] = v
	}
	return seeds, nil
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named("optimize")
}

// renderer prints progress lines when the displayed values change.
type renderer struct {
	out         io.Writer
	trace       *store.TraceWriter
	logger      *zap.Logger
	lastPercent float64
	lastBest    solver.Fitness
}

func newRenderer(out io.Writer, trace *store.TraceWriter, logger *zap.Logger) *renderer {
	return &renderer{
		out:         out,
		trace:       trace,
		logger:      logger,
		lastPercent: -1,
		lastBest:    solver.NaNFitness(),
	}
}

// Percent is the displayed completion: tenths of a percent, capped at 100.
func Percent(current, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return math.Min(math.Floor(float64(current)/float64(total)*1000)/10, 100)
}

func (r *renderer) render(p *solver.Progress) {
	changed := false

	if total := p.Max(); total > 0 {
		percent := Percent(p.Current(), total)
		if percent != r.lastPercent {
			fmt.Fprintf(r.out, "Progress: %.1f%%\n", percent)
			r.lastPercent = percent
			changed = true
		}
	}

	for slot := 0; slot < solver.MaxObjectives; slot++ {
		v := p.Best(slot)
		if math.IsNaN(v) || v == r.lastBest[slot] {
			continue
		}
		fmt.Fprintf(r.out, "  fitness[%d]: %g\n", slot, v)
		r.lastBest[slot] = v
		changed = true
	}

	if changed && r.trace != nil {
		best := p.BestFitness()
		entry := store.TraceEntry{
			Percent:   math.Max(r.lastPercent, 0),
			Current:   p.Current(),
			Max:       p.Max(),
			Best:      store.Objectives(best[:]),
			Timestamp: time.Now(),
		}
		if err := r.trace.Write(entry); err != nil {
			r.logger.Warn("Failed to write progress trace", zap.Error(err))
		}
	}
}

func (d *Driver) startRecord(cfg Configuration, action options.Descriptor, hintCount int) *store.Record {
	if d.Records == nil {
		return nil
	}

	rec := &store.Record{
		RunID:           uuid.NewString(),
		ConfigPath:      cfg.Path(),
		SolverID:        solver.FormatID(action.SolverID),
		GenerationCount: action.GenerationCount,
		PopulationSize:  action.PopulationSize,
		HintCount:       hintCount,
		StartedAt:       time.Now(),
	}
	if d.Registry != nil {
		if desc, ok := d.Registry.Lookup(action.SolverID); ok {
			rec.SolverDescription = desc.Description
		}
	}
	for _, t := range action.Targets {
		rec.Targets = append(rec.Targets, store.Target{LinkIndex: t.LinkIndex, Name: t.Name})
	}

	if err := d.Records.SaveRecord(rec); err != nil {
		d.logger().Warn("Failed to save run record", zap.String("run_id", rec.RunID), zap.Error(err))
		return nil
	}
	d.logger().Info("Recording run", zap.String("run_id", rec.RunID))
	return rec
}

func (d *Driver) openTrace(rec *store.Record) *store.TraceWriter {
	if rec == nil || !d.Trace {
		return nil
	}
	tw, err := store.NewTraceWriter(d.Records.RunDir(rec.RunID))
	if err != nil {
		d.logger().Warn("Failed to open progress trace", zap.String("run_id", rec.RunID), zap.Error(err))
		return nil
	}
	return tw
}

func (d *Driver) finishRecord(cfg Configuration, targets []solver.Target, rec *store.Record, status solver.Status, progress *solver.Progress, runErr error) {
	if rec == nil {
		return
	}

	finished := time.Now()
	rec.FinishedAt = &finished
	rec.Status = status.String()
	if progress.Cancelled() {
		rec.Status = solver.StatusCancelled.String()
	}
	best := progress.BestFitness()
	rec.BestFitness = store.Objectives(best[:])
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if rec.Saved {
		for _, t := range targets {
			_, value, _, err := cfg.ReadBoundedParameters(t.LinkIndex, t.Name)
			if err != nil {
				break
			}
			rec.Values = append(rec.Values, value...)
		}
	}

	if err := d.Records.SaveRecord(rec); err != nil {
		d.logger().Warn("Failed to save run record", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}
