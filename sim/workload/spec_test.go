package workload

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
cycles_per_usec: 1000
max_threads: 8
cores: 2
horizon_us: 100000
threads:
  - name: control
    core: 0
    priority: 2
    budget_us: 200
    period_us: 1000
    behaviour: periodic
    work_us: 150
  - name: logger
    core: 0
    priority: 10
    behaviour: sleep
    work_us: 50
    sleep_us: 500
  - name: hog
    core: 1
    priority: 20
    behaviour: spin
`

func TestLoadWorkloadSpec_ValidYAML_LoadsCorrectly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	spec, err := LoadWorkloadSpec(path)
	require.NoError(t, err)

	assert.Equal(t, "1", spec.Version)
	assert.Equal(t, uint64(1000), spec.CyclesPerUsec)
	assert.Equal(t, 2, spec.Cores)
	require.Len(t, spec.Threads, 3)
	assert.Equal(t, "control", spec.Threads[0].Name)
	assert.True(t, spec.Threads[0].Budgeted())
	assert.False(t, spec.Threads[2].Budgeted())
	assert.NoError(t, spec.Validate())
}

func TestLoadWorkloadSpec_MissingFile(t *testing.T) {
	_, err := LoadWorkloadSpec(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseWorkloadSpec_UnknownKeyRejected(t *testing.T) {
	// GIVEN a spec with a typo in a thread field
	data := strings.Replace(validYAML, "work_us: 150", "wrok_us: 150", 1)

	// WHEN parsed
	_, err := ParseWorkloadSpec([]byte(data))

	// THEN strict decoding rejects it
	assert.Error(t, err)
}

func TestParseWorkloadSpec_DefaultsCores(t *testing.T) {
	spec, err := ParseWorkloadSpec([]byte("cycles_per_usec: 1\nmax_threads: 1\nhorizon_us: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, spec.Cores)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *WorkloadSpec)
		want   string
	}{
		{"zero clock rate", func(s *WorkloadSpec) { s.CyclesPerUsec = 0 }, "cycles_per_usec"},
		{"too many max threads", func(s *WorkloadSpec) { s.MaxThreads = 256 }, "max_threads"},
		{"zero horizon", func(s *WorkloadSpec) { s.HorizonUs = 0 }, "horizon_us"},
		{"no threads", func(s *WorkloadSpec) { s.Threads = nil }, "at least one thread"},
		{"core out of range", func(s *WorkloadSpec) { s.Threads[2].Core = 2 }, "core 2"},
		{"priority zero", func(s *WorkloadSpec) { s.Threads[1].Priority = 0 }, "priority"},
		{"priority too low", func(s *WorkloadSpec) { s.Threads[1].Priority = 32 }, "priority"},
		{"unknown behaviour", func(s *WorkloadSpec) { s.Threads[1].Behaviour = "dance" }, "unknown behaviour"},
		{"duplicate name", func(s *WorkloadSpec) { s.Threads[1].Name = "control" }, "duplicate"},
		{"budget without period", func(s *WorkloadSpec) { s.Threads[0].PeriodUs = 0 }, "requires period_us"},
		{"budget over period", func(s *WorkloadSpec) { s.Threads[0].BudgetUs = 2000 }, "exceeds"},
		{"period too short", func(s *WorkloadSpec) { s.CyclesPerUsec = 1; s.Threads[0].PeriodUs = 999 }, "outside"},
		{"periodic unbudgeted", func(s *WorkloadSpec) { s.Threads[0].BudgetUs = 0 }, "requires budget_us"},
		{"sleep without sleep time", func(s *WorkloadSpec) { s.Threads[1].SleepUs = 0 }, "requires sleep_us"},
		{"work missing", func(s *WorkloadSpec) { s.Threads[1].WorkUs = 0 }, "requires work_us"},
		{"core over capacity", func(s *WorkloadSpec) { s.MaxThreads = 1 }, "more than max_threads"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseWorkloadSpec([]byte(validYAML))
			require.NoError(t, err)
			tt.mutate(spec)

			err = spec.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
