package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slmsched/fpss/sched/trace"
	"github.com/slmsched/fpss/sim"
	"github.com/slmsched/fpss/sim/workload"
)

var (
	// CLI flags for the run command
	workloadPath string // YAML workload file
	logLevel     string // Log verbosity level
	horizonUs    uint64 // Overrides horizon_us from the workload when non-zero
	traceDBPath  string // SQLite file receiving diagnostic records
	traceLog     bool   // Mirror diagnostic records to the debug log
	traceBuffer  int    // Records buffered before they are dropped
	runLabel     string // Free-form label stored with the run
	paranoid     bool   // Audit scheduler invariants after every operation
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "fpss",
	Short: "Fixed-priority sporadic-server scheduling simulator",
}

// runConfig carries everything runSimulation needs besides the workload.
type runConfig struct {
	TraceDB     string
	TraceLog    bool
	TraceBuffer int
	Label       string
	Paranoid    bool
}

// runResult is what a finished run reports.
type runResult struct {
	RunID   string
	Metrics *sim.Metrics
	Dropped int64
}

// runCmd executes the simulation described by a workload file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a workload under the sporadic-server scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		spec, err := workload.LoadWorkloadSpec(workloadPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if horizonUs > 0 {
			spec.HorizonUs = horizonUs
		}

		startTime := time.Now()
		res, err := runSimulation(context.Background(), spec, runConfig{
			TraceDB:     traceDBPath,
			TraceLog:    traceLog,
			TraceBuffer: traceBuffer,
			Label:       runLabel,
			Paranoid:    paranoid,
		}, os.Stdout)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete in %s (run %s).", time.Since(startTime), res.RunID)
	},
}

// runSimulation runs spec to its horizon, prints the report to out and, if
// configured, persists the diagnostic trace.
func runSimulation(ctx context.Context, spec *workload.WorkloadSpec, cfg runConfig, out io.Writer) (*runResult, error) {
	res := &runResult{RunID: uuid.NewString()}

	var sinks trace.Multi
	if cfg.TraceLog {
		sinks = append(sinks, trace.NewLogSink(logrus.StandardLogger(), logrus.DebugLevel))
	}
	var store *trace.SQLiteStore
	if cfg.TraceDB != "" {
		var err error
		store, err = trace.OpenSQLite(ctx, cfg.TraceDB)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if cfg.TraceBuffer > 0 {
			store.SetBufferLimit(cfg.TraceBuffer)
		}
		if err := store.BeginRun(ctx, res.RunID, cfg.Label); err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
	}

	s, err := sim.NewSimulator(spec, sim.Options{
		Sink:         sinks,
		WarningRates: trace.DefaultWarningRates,
		Paranoid:     cfg.Paranoid,
	})
	if err != nil {
		return nil, err
	}
	s.Run()
	res.Metrics = s.Collect()
	res.Metrics.Print(out)

	if store != nil {
		pending := store.Pending()
		res.Dropped = store.Dropped()
		if err := store.Flush(ctx); err != nil {
			return nil, err
		}
		fmt.Fprintf(out, "Trace                : %s records stored as run %s", humanize.Comma(int64(pending)), res.RunID)
		if res.Dropped > 0 {
			fmt.Fprintf(out, " (%s dropped, raise --trace-buffer)", humanize.Comma(res.Dropped))
		}
		fmt.Fprintln(out)
	}
	return res, nil
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&workloadPath, "workload", "", "Path to the YAML workload file")
	runCmd.Flags().Uint64Var(&horizonUs, "horizon", 0, "Simulation horizon in microseconds (overrides the workload)")
	runCmd.Flags().StringVar(&traceDBPath, "trace-db", "", "SQLite file to store diagnostic records in")
	runCmd.Flags().BoolVar(&traceLog, "trace-log", false, "Log every diagnostic record at debug level")
	runCmd.Flags().IntVar(&traceBuffer, "trace-buffer", 1<<20, "Maximum diagnostic records kept for --trace-db")
	runCmd.Flags().StringVar(&runLabel, "label", "", "Label stored with the run in --trace-db")
	runCmd.Flags().BoolVar(&paranoid, "paranoid", false, "Check scheduler invariants after every operation")
	_ = runCmd.MarkFlagRequired("workload")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
