package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slmsched/fpss/sched/trace"
)

var (
	summarizeDB  string
	summarizeRun string
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect diagnostic traces stored by run --trace-db",
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a stored run (the newest one by default)",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if err := summarizeTrace(context.Background(), summarizeDB, summarizeRun, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func summarizeTrace(ctx context.Context, dbPath, runID string, out io.Writer) error {
	store, err := trace.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("%s: no runs recorded", dbPath)
	}
	run := runs[0]
	if runID != "" {
		found := false
		for _, r := range runs {
			if r.ID == runID {
				run, found = r, true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: run %s not found", dbPath, runID)
		}
	}

	records, err := store.Records(ctx, run.ID)
	if err != nil {
		return err
	}
	sum := trace.Summarize(records)

	fmt.Fprintf(out, "Run %s %q recorded %s\n", run.ID, run.Label, humanize.Time(run.CreatedAt))
	fmt.Fprintf(out, "Records: %s, cycles %s to %s\n",
		humanize.Comma(int64(sum.TotalRecords)), humanize.Comma(int64(sum.FirstClock)), humanize.Comma(int64(sum.LastClock)))

	names := make([]string, 0, len(sum.ByName))
	for name := range sum.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-16s %s\n", name, humanize.Comma(int64(sum.ByName[name])))
	}

	tids := make([]uint32, 0, len(sum.ThreadCounts))
	for tid := range sum.ThreadCounts {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })
	for _, tid := range tids {
		fmt.Fprintf(out, "  thread %-4d dispatches=%s replenished=%s\n",
			tid, humanize.Comma(int64(sum.Dispatches[tid])), humanize.Comma(sum.Replenished[tid]))
	}
	return nil
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeDB, "db", "", "SQLite trace database")
	summarizeCmd.Flags().StringVar(&summarizeRun, "run", "", "Run id (default: newest)")
	_ = summarizeCmd.MarkFlagRequired("db")
	traceCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(traceCmd)
}
