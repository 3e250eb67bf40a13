package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nvandessel/latwalk/internal/cell"
	"github.com/nvandessel/latwalk/internal/checkpoint"
	"github.com/nvandessel/latwalk/internal/config"
	"github.com/nvandessel/latwalk/internal/enumerate"
	"github.com/nvandessel/latwalk/internal/histogram"
	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/logging"
	"github.com/nvandessel/latwalk/internal/metrics"
)

func newEnumerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enumerate",
		Short: "Enumerate every walk up to length N",
		Long: `Grow every self-avoiding walk from the origin up to length N with unit
weight, accumulating the observables of each (length, contacts, face
contacts) bin. The averages per length are printed and the full state is
written as a checkpoint.

Defaults come from the config file; flags override them.

Examples:
  latwalk enumerate --lattice hexagonal -n 16
  latwalk enumerate --lattice square -n 12 --workers 4 --json`,
		RunE: runEnumerate,
	}

	cmd.Flags().String("lattice", "", "Lattice: hexagonal or square")
	cmd.Flags().IntP("n", "n", 0, "Maximum walk length")
	cmd.Flags().Float64("mu", 0, "Growth constant recorded with the run")
	cmd.Flags().Int("contact-level", 0, "Face-contact level used as third histogram index")
	cmd.Flags().Int("workers", 0, "Parallel subtrees (0 or 1 runs serially)")
	cmd.Flags().Uint64("progress-every", 1_000_000, "Report progress after this many samples (0 disables)")
	cmd.Flags().String("checkpoint-dir", "", "Checkpoint directory (overrides config)")
	cmd.Flags().Bool("no-checkpoint", false, "Do not write a checkpoint file")
	cmd.Flags().String("database", "", "SQLite run store (overrides config)")
	cmd.Flags().String("metrics-textfile", "", "Prometheus textfile to write at the end of the run")

	return cmd
}

// applyEnumerateFlags copies explicitly set flags over cfg.
func applyEnumerateFlags(cmd *cobra.Command, cfg *config.LatwalkConfig) {
	f := cmd.Flags()
	if f.Changed("lattice") {
		cfg.Simulation.Lattice, _ = f.GetString("lattice")
	}
	if f.Changed("n") {
		cfg.Simulation.N, _ = f.GetInt("n")
	}
	if f.Changed("mu") {
		cfg.Simulation.Mu, _ = f.GetFloat64("mu")
	}
	if f.Changed("contact-level") {
		cfg.Simulation.ContactLevel, _ = f.GetInt("contact-level")
	}
	if f.Changed("workers") {
		cfg.Simulation.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("checkpoint-dir") {
		cfg.Checkpoint.Dir, _ = f.GetString("checkpoint-dir")
	}
	if noCkpt, _ := f.GetBool("no-checkpoint"); noCkpt {
		cfg.Checkpoint.Dir = ""
	}
	if f.Changed("database") {
		cfg.Checkpoint.Database, _ = f.GetString("database")
	}
	if f.Changed("metrics-textfile") {
		cfg.Metrics.Textfile, _ = f.GetString("metrics-textfile")
	}
}

// enumerateOutput is the --json result of a run.
type enumerateOutput struct {
	RunID      string                    `json:"run_id"`
	Lattice    string                    `json:"lattice"`
	N          int                       `json:"n"`
	Samples    uint64                    `json:"samples"`
	Elapsed    string                    `json:"elapsed"`
	Checkpoint string                    `json:"checkpoint,omitempty"`
	Pruned     []string                  `json:"pruned,omitempty"`
	Lengths    []enumerate.LengthSummary `json:"lengths"`
}

func runEnumerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyEnumerateFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := lattice.ByName(cfg.Simulation.Lattice)
	if err != nil {
		return err
	}
	params := cell.Params{
		Lattice:      l,
		N:            cfg.Simulation.N,
		Mu:           cfg.Simulation.Mu,
		ContactLevel: cfg.Simulation.ContactLevel,
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	logger := newLogger(cmd, cfg)
	runID := checkpoint.NewRunID()
	events := logging.NewEventLogger(cfg.Logging.EventDir, cfg.Logging.Level, runID)
	defer events.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), stopSignals...)
	defer stop()

	opts := enumerate.Options{Workers: cfg.Simulation.Workers}
	opts.ProgressEvery, _ = cmd.Flags().GetUint64("progress-every")
	opts.OnProgress = progressReporter(cmd, logger, jsonOut)
	if cfg.Simulation.Workers > 1 {
		// Concurrent cells would interleave their progress lines.
		opts.OnProgress = nil
	}

	logger.Info("enumeration started", "run_id", runID, "lattice", l.Name(), "n", params.N, "workers", cfg.Simulation.Workers)
	events.Log("run_started", map[string]any{"lattice": l.Name(), "n": params.N, "mu": params.Mu, "contact_level": params.ContactLevel})

	res, err := enumerate.Run(ctx, params, opts)
	if opts.OnProgress != nil && !jsonOut && isTerminal(os.Stderr) {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		events.Log("run_failed", map[string]any{"error": err.Error()})
		return err
	}
	stats := res.Stats()
	logger.Info("enumeration finished", "samples", stats.Samples, "elapsed", stats.Elapsed.Round(time.Millisecond))
	events.Log("run_finished", map[string]any{"samples": stats.Samples, "elapsed_seconds": stats.Elapsed.Seconds()})

	run := metrics.NewRun()
	run.ObserveRun(metrics.Summary{
		Lattice:          l.Name(),
		N:                params.N,
		Samples:          stats.Samples,
		Tours:            stats.Tours,
		DurationSeconds:  stats.Elapsed.Seconds(),
		SamplesPerSecond: stats.SamplesPerSecond(),
		BestFilled:       res.Cell.Best().Filled(),
	})

	out := enumerateOutput{
		RunID:   runID,
		Lattice: l.Name(),
		N:       params.N,
		Samples: stats.Samples,
		Elapsed: stats.Elapsed.Round(time.Millisecond).String(),
		Lengths: res.Summary(),
	}

	cp := checkpoint.FromCell(res.Cell, res.Tours, map[string]*histogram.Array[int64]{enumerate.SlotCounts: res.Counts})
	if cfg.Checkpoint.Dir != "" {
		path, pruned, err := persistFile(cfg, runID, cp, run, logger, events)
		if err != nil {
			return err
		}
		out.Checkpoint, out.Pruned = path, pruned
	}
	if cfg.Checkpoint.Database != "" {
		if err := persistDatabase(cmd.Context(), cfg.Checkpoint.Database, runID, cp, run, logger); err != nil {
			return err
		}
	}
	if cfg.Metrics.Textfile != "" {
		if err := run.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics not written", "error", err)
		}
	}

	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	printSummary(cmd, out, stats)
	return nil
}

// persistFile writes the checkpoint file and applies retention.
func persistFile(cfg *config.LatwalkConfig, runID string, cp *checkpoint.Checkpoint, run *metrics.Run,
	logger *slog.Logger, events *logging.EventLogger) (string, []string, error) {
	path := checkpoint.GeneratePath(cfg.Checkpoint.Dir, time.Now(), runID)
	header, err := checkpoint.Write(path, runID, cp)
	if err != nil {
		run.CheckpointWritten("file", 0, err)
		return "", nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	run.CheckpointWritten("file", size, nil)
	logger.Info("checkpoint written", "path", path, "size", humanize.Bytes(uint64(size)))
	logger.Log(context.Background(), logging.LevelTrace, "checkpoint header", "checksum", header.Checksum, "slots", header.Slots)
	events.Log("checkpoint_written", map[string]any{"path": path, "size": size, "checksum": header.Checksum})

	policy, err := retentionPolicy(cfg.Checkpoint)
	if err != nil || policy == nil {
		return path, nil, err
	}
	pruned, err := checkpoint.ApplyRetention(cfg.Checkpoint.Dir, policy)
	if err != nil {
		logger.Warn("retention failed", "error", err)
	}
	for _, p := range pruned {
		logger.Debug("checkpoint pruned", "path", p)
	}
	return path, pruned, nil
}

func persistDatabase(ctx context.Context, path, runID string, cp *checkpoint.Checkpoint, run *metrics.Run, logger *slog.Logger) error {
	store, err := checkpoint.OpenSQLite(ctx, path)
	if err != nil {
		run.CheckpointWritten("sqlite", 0, err)
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.Close()
	size, err := store.Save(ctx, runID, cp)
	run.CheckpointWritten("sqlite", size, err)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	logger.Info("run saved", "database", path, "run_id", runID)
	return nil
}

// retentionPolicy builds the policy for cfg. It returns nil when nothing
// should be pruned.
func retentionPolicy(cfg config.CheckpointConfig) (checkpoint.RetentionPolicy, error) {
	var policies []checkpoint.RetentionPolicy
	if cfg.Keep > 0 {
		policies = append(policies, &checkpoint.CountPolicy{MaxCount: cfg.Keep})
	}
	if cfg.MaxAge != "" {
		d, err := checkpoint.ParseDuration(cfg.MaxAge)
		if err != nil {
			return nil, err
		}
		policies = append(policies, &checkpoint.AgePolicy{MaxAge: d})
	}
	switch len(policies) {
	case 0:
		return nil, nil
	case 1:
		return policies[0], nil
	default:
		return &checkpoint.CompositePolicy{Policies: policies}, nil
	}
}

// progressReporter rewrites a status line on a terminal and logs at debug
// level otherwise.
func progressReporter(cmd *cobra.Command, logger *slog.Logger, jsonOut bool) func(cell.Stats) {
	if !jsonOut && isTerminal(os.Stderr) {
		w := cmd.ErrOrStderr()
		return func(s cell.Stats) { fmt.Fprintf(w, "\r%s", s) }
	}
	return func(s cell.Stats) {
		logger.Debug("progress", "samples", s.Samples, "rate", s.SamplesPerSecond())
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printSummary(cmd *cobra.Command, out enumerateOutput, stats cell.Stats) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s lattice, N=%d: %s\n", out.Lattice, out.N, stats)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "n\twalks\t<Re2>\t<Rg2>\t<Rm2>\t")
	for _, s := range out.Lengths {
		fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\t%.6f\t\n", s.N, humanize.Comma(s.Walks), s.Re2, s.Rg2, s.Rm2)
	}
	tw.Flush()
	if out.Checkpoint != "" {
		fmt.Fprintf(w, "Checkpoint: %s\n", out.Checkpoint)
	}
	if len(out.Pruned) > 0 {
		fmt.Fprintf(w, "Pruned %d old checkpoint(s)\n", len(out.Pruned))
	}
}
