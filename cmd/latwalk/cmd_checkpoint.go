package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/latwalk/internal/checkpoint"
	"github.com/nvandessel/latwalk/internal/config"
	"github.com/nvandessel/latwalk/internal/enumerate"
	"github.com/nvandessel/latwalk/internal/lattice"
	"github.com/nvandessel/latwalk/internal/visualization"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoint",
		Aliases: []string{"ckpt"},
		Short:   "Inspect and manage checkpoints",
		Long: `Inspect, verify, merge and prune checkpoint files, and list runs saved
in the SQLite run store.

Examples:
  latwalk checkpoint list
  latwalk checkpoint show ~/.latwalk/checkpoints/latwalk-checkpoint-20260301-120000.000.ckpt
  latwalk checkpoint verify ./*.ckpt
  latwalk checkpoint merge -o total.ckpt a.ckpt b.ckpt
  latwalk checkpoint draw a.ckpt --contacts 2 --faces 1 --format svg > walk.svg
  latwalk checkpoint prune --keep 3`,
	}

	cmd.AddCommand(
		newCheckpointShowCmd(),
		newCheckpointVerifyCmd(),
		newCheckpointListCmd(),
		newCheckpointPruneCmd(),
		newCheckpointMergeCmd(),
		newCheckpointDrawCmd(),
	)
	return cmd
}

// checkpointDir resolves --dir, falling back to the configured directory.
func checkpointDir(cmd *cobra.Command) (string, *config.LatwalkConfig, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir, cfg, nil
	}
	return cfg.Checkpoint.Dir, cfg, nil
}

type bestEntry struct {
	Contacts     int             `json:"contacts"`
	FaceContacts int             `json:"face_contacts"`
	Weight       float64         `json:"weight"`
	Walk         []lattice.Point `json:"walk,omitempty"`
}

type showOutput struct {
	Header  *checkpoint.Header        `json:"header,omitempty"`
	RunID   string                    `json:"run_id,omitempty"`
	Slots   []string                  `json:"slots"`
	Samples uint64                    `json:"samples"`
	Tours   uint64                    `json:"tours"`
	Lengths []enumerate.LengthSummary `json:"lengths,omitempty"`
	Best    []bestEntry               `json:"best"`
}

func newCheckpointShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show a checkpoint's parameters, averages and best samples",
		Long: `Show a checkpoint file, or with --run a run from the SQLite store.

Averages per length are shown when the checkpoint carries walk counts.
--walks prints the coordinates of every best sample.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			runID, _ := cmd.Flags().GetString("run")
			withWalks, _ := cmd.Flags().GetBool("walks")

			var out showOutput
			var cp *checkpoint.Checkpoint
			switch {
			case len(args) == 1:
				header, c, err := checkpoint.Read(args[0])
				if err != nil {
					return fmt.Errorf("failed to read checkpoint: %w", err)
				}
				out.Header, out.RunID, cp = header, header.RunID, c
			case runID != "":
				store, err := openStore(cmd)
				if err != nil {
					return err
				}
				defer store.Close()
				if cp, err = store.Load(cmd.Context(), runID); err != nil {
					return err
				}
				out.RunID = runID
			default:
				return errors.New("either a checkpoint path or --run is required")
			}

			out.Slots = cp.Slots()
			out.Samples, out.Tours = cp.Samples, cp.Tours
			if counts, ok := cp.Counts[enumerate.SlotCounts]; ok {
				out.Lengths = enumerate.Summarize(cp.Histograms, counts)
			}
			best := cp.Best()
			for m1 := 0; m1 < best.Weights.Extents[0]; m1++ {
				for m2 := 0; m2 < best.Weights.Extents[1]; m2++ {
					w := best.Weight(m1, m2)
					if w == 0 {
						continue
					}
					e := bestEntry{Contacts: m1, FaceContacts: m2, Weight: w}
					if withWalks {
						e.Walk = best.Walk(m1, m2)
					}
					out.Best = append(out.Best, e)
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run:      %s\n", valueOrDefault(out.RunID, "(unknown)"))
			fmt.Fprintf(w, "Lattice:  %s  N=%d  mu=%g  contact level=%d\n", cp.Lattice, cp.N, cp.Mu, cp.ContactLevel)
			fmt.Fprintf(w, "Written:  %s (%s)\n", cp.Time.Format(time.RFC3339), humanize.Time(cp.Time))
			fmt.Fprintf(w, "Samples:  %s in %s tour(s)\n", humanize.Comma(int64(cp.Samples)), humanize.Comma(int64(cp.Tours)))
			fmt.Fprintf(w, "Slots:    %s\n", strings.Join(out.Slots, ", "))
			if len(out.Lengths) > 0 {
				fmt.Fprintln(w)
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
				fmt.Fprintln(tw, "n\twalks\t<Re2>\t<Rg2>\t<Rm2>\t")
				for _, s := range out.Lengths {
					fmt.Fprintf(tw, "%d\t%s\t%.6f\t%.6f\t%.6f\t\n", s.N, humanize.Comma(s.Walks), s.Re2, s.Rg2, s.Rm2)
				}
				tw.Flush()
			}
			fmt.Fprintf(w, "\nBest samples (%d bins):\n", len(out.Best))
			for _, e := range out.Best {
				fmt.Fprintf(w, "  contacts=%d faces=%d weight=%g\n", e.Contacts, e.FaceContacts, e.Weight)
				if withWalks {
					fmt.Fprintf(w, "    %s\n", formatWalk(e.Walk))
				}
			}
			return nil
		},
	}
	cmd.Flags().String("run", "", "Load this run id from the SQLite store")
	cmd.Flags().String("database", "", "SQLite run store (overrides config)")
	cmd.Flags().Bool("walks", false, "Print the coordinates of every best sample")
	return cmd
}

func formatWalk(points []lattice.Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = p.String()
	}
	return strings.Join(parts, " -- ")
}

func openStore(cmd *cobra.Command) (*checkpoint.SQLiteStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := cfg.Checkpoint.Database
	if db, _ := cmd.Flags().GetString("database"); db != "" {
		path = db
	}
	if path == "" {
		return nil, errors.New("no run store configured (set checkpoint.database or --database)")
	}
	store, err := checkpoint.OpenSQLite(cmd.Context(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return store, nil
}

func newCheckpointVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>...",
		Short: "Verify checkpoint checksums and contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			type result struct {
				Path  string `json:"path"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}
			results := make([]result, 0, len(args))
			failed := 0
			for _, path := range args {
				r := result{Path: path, Valid: true}
				if _, _, err := checkpoint.Read(path); err != nil {
					r.Valid, r.Error = false, err.Error()
					failed++
				}
				results = append(results, r)
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"results": results}); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Valid {
						fmt.Fprintf(cmd.OutOrStdout(), "OK    %s\n", r.Path)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %s\n", r.Path, r.Error)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checkpoint(s) failed verification", failed, len(args))
			}
			return nil
		},
	}
}

func newCheckpointListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checkpoint files, or runs in the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			if runs, _ := cmd.Flags().GetBool("runs"); runs {
				store, err := openStore(cmd)
				if err != nil {
					return err
				}
				defer store.Close()
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"runs": list, "total_count": len(list)})
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs stored")
					return nil
				}
				for _, r := range list {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s  %-9s N=%-3d %s samples\n",
						r.UpdatedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.Lattice, r.N,
						humanize.Comma(int64(r.Samples)))
				}
				return nil
			}

			dir, _, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			infos, err := checkpoint.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			if jsonOut {
				type jsonEntry struct {
					Path      string    `json:"path"`
					RunID     string    `json:"run_id,omitempty"`
					Size      int64     `json:"size_bytes"`
					CreatedAt time.Time `json:"created_at"`
				}
				entries := make([]jsonEntry, 0, len(infos))
				for _, i := range infos {
					entries = append(entries, jsonEntry{Path: i.Path, RunID: i.RunID, Size: i.Size, CreatedAt: i.CreatedAt})
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"checkpoints": entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}

			if len(infos) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No checkpoints found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoints in %s:\n", dir)
			var total int64
			for _, i := range infos {
				total += i.Size
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %8s  %s\n",
					i.CreatedAt.Local().Format("2006-01-02 15:04"), humanize.Bytes(uint64(i.Size)), filepath.Base(i.Path))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Total: %d checkpoints, %s\n", len(infos), humanize.Bytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Checkpoint directory (overrides config)")
	cmd.Flags().Bool("runs", false, "List runs in the SQLite store instead of files")
	cmd.Flags().String("database", "", "SQLite run store (overrides config)")
	return cmd
}

func newCheckpointPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old checkpoint files",
		Long: `Delete checkpoint files not kept by the retention policy. A file is kept if
it is among the --keep newest or younger than --max-age.

Examples:
  latwalk checkpoint prune --keep 3
  latwalk checkpoint prune --max-age 2w`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, cfg, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			ret := cfg.Checkpoint
			if cmd.Flags().Changed("keep") {
				ret.Keep, _ = cmd.Flags().GetInt("keep")
			}
			if cmd.Flags().Changed("max-age") {
				ret.MaxAge, _ = cmd.Flags().GetString("max-age")
			}
			policy, err := retentionPolicy(ret)
			if err != nil {
				return fmt.Errorf("invalid retention: %w", err)
			}
			if policy == nil {
				return errors.New("no retention configured (use --keep or --max-age)")
			}

			deleted, err := checkpoint.ApplyRetention(dir, policy)
			if err != nil {
				return fmt.Errorf("failed to prune checkpoints: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"deleted": deleted, "directory": dir})
			}
			for _, p := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", filepath.Base(p))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d checkpoint(s) in %s\n", len(deleted), dir)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Checkpoint directory (overrides config)")
	cmd.Flags().Int("keep", 0, "Keep this many newest checkpoints")
	cmd.Flags().String("max-age", "", "Keep checkpoints younger than this (e.g. 36h, 7d, 2w)")
	return cmd
}

func newCheckpointMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge -o <out> <path> <path>...",
		Short: "Merge checkpoints of independent runs",
		Long: `Merge checkpoints that share lattice, N and contact level. Accumulators and
counts are summed and every best-sample bin keeps the heavier walk.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outPath, _ := cmd.Flags().GetString("output")
			if outPath == "" {
				return errors.New("--output is required")
			}

			_, merged, err := checkpoint.Read(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			for _, path := range args[1:] {
				_, cp, err := checkpoint.Read(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				if err := merged.Merge(cp); err != nil {
					return fmt.Errorf("failed to merge %s: %w", path, err)
				}
			}

			header, err := checkpoint.Write(outPath, checkpoint.NewRunID(), merged)
			if err != nil {
				return fmt.Errorf("failed to write merged checkpoint: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"path": outPath, "header": header, "inputs": len(args)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d checkpoints into %s (%s samples)\n",
				len(args), outPath, humanize.Comma(int64(merged.Samples)))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Merged checkpoint path")
	return cmd
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func newCheckpointDrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw <path>",
		Short: "Render a best-sample walk",
		Long: `Render the best walk stored for one (contacts, face contacts) bin as
Graphviz DOT (for neato -n), JSON or SVG. Steps are drawn solid and
nearest-neighbour contacts dashed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			contacts, _ := cmd.Flags().GetInt("contacts")
			faces, _ := cmd.Flags().GetInt("faces")
			formatStr, _ := cmd.Flags().GetString("format")
			if jsonOut {
				formatStr = string(visualization.FormatJSON)
			}
			format, err := visualization.ParseFormat(formatStr)
			if err != nil {
				return err
			}

			_, cp, err := checkpoint.Read(args[0])
			if err != nil {
				return fmt.Errorf("failed to read checkpoint: %w", err)
			}
			best := cp.Best()
			if contacts < 0 || contacts >= best.Weights.Extents[0] || faces < 0 || faces >= best.Weights.Extents[1] {
				return fmt.Errorf("bin (%d, %d) outside table %v", contacts, faces, best.Weights.Extents)
			}
			points := best.Walk(contacts, faces)
			if points == nil {
				return fmt.Errorf("no walk stored for contacts=%d faces=%d", contacts, faces)
			}
			l, err := lattice.ByName(cp.Lattice)
			if err != nil {
				return err
			}

			g := visualization.Build(l, points)
			switch format {
			case visualization.FormatJSON:
				return writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(g))
			case visualization.FormatSVG:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderSVG(g))
			default:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(g))
			}
			return nil
		},
	}
	cmd.Flags().Int("contacts", 0, "Nearest-neighbour contact bin")
	cmd.Flags().Int("faces", 0, "Face-contact bin")
	cmd.Flags().String("format", "dot", "Output format: dot, json or svg")
	return cmd
}
