package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/chainopt/internal/exitcode"
	"github.com/cwbudde/chainopt/internal/observability"
	"github.com/cwbudde/chainopt/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runsOptions struct {
	dir       string
	keepLast  int
	olderThan time.Duration
	force     bool
}

func newRunsCmd(a *app) *cobra.Command {
	o := &runsOptions{}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage optimization run records",
		Long: `Manage the records written for every optimize run when store.dir is set.
Each run directory holds record.json and, with store.trace, trace.jsonl.`,
	}
	runsCmd.PersistentFlags().StringVar(&o.dir, "dir", "", "run record directory (default is the store.dir setting)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all run records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.open(a)
			if err != nil {
				return err
			}
			return listRuns(cmd.OutOrStdout(), s)
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete old run records",
		Long: `Delete run records based on a retention policy: keep only the newest N
records, delete records older than a duration, or both.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.keepLast == 0 && o.olderThan == 0 {
				return exitcode.Errorf(exitcode.OptionParse, "must specify either --keep-last or --older-than")
			}
			s, err := o.open(a)
			if err != nil {
				return err
			}
			return cleanRuns(cmd.InOrStdin(), cmd.OutOrStdout(), s, o.keepLast, o.olderThan, o.force)
		},
	}
	cleanCmd.Flags().IntVar(&o.keepLast, "keep-last", 0, "keep only the newest N records (0 = keep all)")
	cleanCmd.Flags().DurationVar(&o.olderThan, "older-than", 0, "delete records older than this, e.g. 168h (0 = no age limit)")
	cleanCmd.Flags().BoolVarP(&o.force, "force", "f", false, "skip confirmation prompt")

	runsCmd.AddCommand(listCmd, cleanCmd)
	return runsCmd
}

func (o *runsOptions) open(a *app) (*store.FSStore, error) {
	dir := o.dir
	if dir == "" && a.settings != nil {
		dir = a.settings.Store.Dir
	}
	if dir == "" {
		return nil, exitcode.Errorf(exitcode.OptionParse, "no run record directory, use --dir or set store.dir")
	}
	s, err := store.NewFSStore(dir, observability.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open run records: %w", err)
	}
	return s, nil
}

func listRuns(out io.Writer, s *store.FSStore) error {
	infos, err := s.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list run records: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No run records found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tBEST COST\tCONFIGURATION\tSIZE")
	fmt.Fprintln(w, "------\t-------\t------\t---------\t-------------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(s.RunDir(info.RunID)); err == nil {
			sizeStr = formatBytes(size)
		}

		status := info.Status
		if status == "" {
			status = "running"
		}
		cost := "-"
		if !math.IsNaN(info.BestCost) {
			cost = fmt.Sprintf("%.6g", info.BestCost)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(info.RunID),
			info.StartedAt.Format("2006-01-02 15:04:05"),
			status,
			cost,
			info.ConfigPath,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func cleanRuns(in io.Reader, out io.Writer, s *store.FSStore, keepLast int, olderThan time.Duration, force bool) error {
	infos, err := s.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list run records: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No run records to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThan, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No run records match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run record(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.RunID), info.ConfigPath, info.StartedAt.Format("2006-01-02 15:04:05"))
	}

	if !force {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	logger := observability.GetLogger()
	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := s.DeleteRecord(info.RunID); err != nil {
			logger.Error("Failed to delete run record", zap.String("run_id", info.RunID), zap.Error(err))
			failed++
			continue
		}
		logger.Info("Deleted run record", zap.String("run_id", info.RunID))
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d run record(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns, oldest first, the records older than
// olderThan plus the oldest records beyond the newest keepLast.
func selectRunsForDeletion(infos []store.RecordInfo, keepLast int, olderThan time.Duration, now time.Time) []store.RecordInfo {
	sorted := make([]store.RecordInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.Before(sorted[j].StartedAt)
	})

	surplus := 0
	if keepLast > 0 && len(sorted) > keepLast {
		surplus = len(sorted) - keepLast
	}
	cutoff := now.Add(-olderThan)

	var toDelete []store.RecordInfo
	for i, info := range sorted {
		if i < surplus || (olderThan > 0 && info.StartedAt.Before(cutoff)) {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
