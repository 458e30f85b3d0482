package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/slmsched/fpss/sim/workload"
)

var validatePath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a workload file without running it",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		if err := validateWorkload(validatePath, cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func validateWorkload(path string, out io.Writer) error {
	spec, err := workload.LoadWorkloadSpec(path)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	budgeted := 0
	for _, th := range spec.Threads {
		if th.Budgeted() {
			budgeted++
		}
	}
	fmt.Fprintf(out, "%s: ok, %d threads (%d budgeted) on %d cores\n", path, len(spec.Threads), budgeted, spec.Cores)
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&validatePath, "workload", "", "Path to the YAML workload file")
	_ = validateCmd.MarkFlagRequired("workload")
	rootCmd.AddCommand(validateCmd)
}
