// Package testutil provides shared test infrastructure for the simulator.
// It holds the golden scenario types and assertion helpers used by sim/ tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/golden.json.
type GoldenDataset struct {
	Tests []GoldenScenario `json:"tests"`
}

// GoldenScenario is one workload file and the metrics it must reproduce.
type GoldenScenario struct {
	Name     string             `json:"name"`
	Workload string             `json:"workload"` // relative to testdata/workloads
	Threads  []GoldenThread     `json:"threads"`
	Cores    []GoldenCore       `json:"cores"`
	Shares   map[string]float64 `json:"shares"`
}

// GoldenThread holds the exact per-thread expectations.
type GoldenThread struct {
	Name           string `json:"name"`
	ExecutedCycles uint64 `json:"executed_cycles"`
	Completed      int    `json:"completed"`
	Expended       int    `json:"expended"`
}

// GoldenCore holds the exact per-core expectations.
type GoldenCore struct {
	ID         int    `json:"id"`
	IdleCycles uint64 `json:"idle_cycles"`
}

// testdataDir resolves the repo root testdata/ relative to this source file.
func testdataDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// sim/internal/testutil/ -> testdata/
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata")
}

// LoadGoldenDataset loads the golden scenarios from the testdata directory.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdataDir(t), "golden.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// WorkloadPath returns the absolute path of a scenario's workload file.
func WorkloadPath(t *testing.T, sc GoldenScenario) string {
	t.Helper()
	return filepath.Join(testdataDir(t), "workloads", sc.Workload)
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
