// Package workload loads thread-set descriptions for the host simulator.
package workload

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/slmsched/fpss/sched"
)

// MaxThreadsPerCore is bounded by the per-core notification table, whose
// slot 0 is reserved.
const MaxThreadsPerCore = 255

// Behaviours a simulated thread can follow.
const (
	BehaviourSpin     = "spin"     // run forever
	BehaviourPeriodic = "periodic" // run work_us, then wait for the next period
	BehaviourSleep    = "sleep"    // run work_us, then sleep for sleep_us
	BehaviourYield    = "yield"    // run work_us, then yield and continue
)

var validBehaviours = map[string]bool{
	BehaviourSpin: true, BehaviourPeriodic: true, BehaviourSleep: true, BehaviourYield: true,
}

// WorkloadSpec is the top-level workload configuration.
// Loaded from YAML via LoadWorkloadSpec(path).
type WorkloadSpec struct {
	Version       string       `yaml:"version"`
	CyclesPerUsec uint64       `yaml:"cycles_per_usec"`
	MaxThreads    int          `yaml:"max_threads"` // per core
	Cores         int          `yaml:"cores"`
	HorizonUs     uint64       `yaml:"horizon_us"`
	Threads       []ThreadSpec `yaml:"threads"`
}

// ThreadSpec defines one simulated thread.
type ThreadSpec struct {
	Name      string `yaml:"name"`
	Core      int    `yaml:"core"`
	Priority  int    `yaml:"priority"`
	BudgetUs  uint64 `yaml:"budget_us,omitempty"` // 0 = unbudgeted
	PeriodUs  uint64 `yaml:"period_us,omitempty"`
	Behaviour string `yaml:"behaviour"`
	WorkUs    uint64 `yaml:"work_us,omitempty"`
	SleepUs   uint64 `yaml:"sleep_us,omitempty"`
}

// Budgeted reports whether the thread runs under a budget.
func (t ThreadSpec) Budgeted() bool { return t.BudgetUs > 0 }

// Converter returns the cycle converter for the spec's clock rate.
func (s *WorkloadSpec) Converter() sched.CycleConverter {
	return sched.CycleConverter{CyclesPerUsec: s.CyclesPerUsec}
}

// LoadWorkloadSpec reads and parses a YAML workload specification file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	return ParseWorkloadSpec(data)
}

// ParseWorkloadSpec parses YAML workload data with the same strictness as LoadWorkloadSpec.
func ParseWorkloadSpec(data []byte) (*WorkloadSpec, error) {
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	if spec.Version == "" {
		spec.Version = "1"
	}
	if spec.Cores == 0 {
		spec.Cores = 1
	}
	return &spec, nil
}

// Validate checks that all fields in the spec are valid.
func (s *WorkloadSpec) Validate() error {
	if s.CyclesPerUsec == 0 {
		return fmt.Errorf("cycles_per_usec must be positive")
	}
	if s.Cores <= 0 {
		return fmt.Errorf("cores must be positive, got %d", s.Cores)
	}
	if s.MaxThreads <= 0 || s.MaxThreads > MaxThreadsPerCore {
		return fmt.Errorf("max_threads must be in [1, %d], got %d", MaxThreadsPerCore, s.MaxThreads)
	}
	if s.HorizonUs == 0 {
		return fmt.Errorf("horizon_us must be positive")
	}
	if len(s.Threads) == 0 {
		return fmt.Errorf("at least one thread required")
	}
	names := make(map[string]bool, len(s.Threads))
	perCore := make(map[int]int)
	for i := range s.Threads {
		th := &s.Threads[i]
		if err := s.validateThread(th, i); err != nil {
			return err
		}
		if names[th.Name] {
			return fmt.Errorf("thread[%d]: duplicate name %q", i, th.Name)
		}
		names[th.Name] = true
		perCore[th.Core]++
		if perCore[th.Core] > s.MaxThreads {
			return fmt.Errorf("thread[%d]: core %d has more than max_threads=%d threads", i, th.Core, s.MaxThreads)
		}
	}
	return nil
}

func (s *WorkloadSpec) validateThread(th *ThreadSpec, idx int) error {
	prefix := fmt.Sprintf("thread[%d]", idx)
	cv := s.Converter()
	if th.Name == "" {
		return fmt.Errorf("%s: name required", prefix)
	}
	if th.Core < 0 || th.Core >= s.Cores {
		return fmt.Errorf("%s: core %d not in [0, %d)", prefix, th.Core, s.Cores)
	}
	if th.Priority < sched.PrioHighest || th.Priority > sched.PrioLowest {
		return fmt.Errorf("%s: priority %d not in [%d, %d]", prefix, th.Priority, sched.PrioHighest, sched.PrioLowest)
	}
	if !validBehaviours[th.Behaviour] {
		return fmt.Errorf("%s: unknown behaviour %q; valid: spin, periodic, sleep, yield", prefix, th.Behaviour)
	}
	if th.PeriodUs > 0 {
		p := cv.UsecToCycles(th.PeriodUs)
		if p < sched.WindowLowest || p > sched.WindowHighest {
			return fmt.Errorf("%s: period_us %d is %d cycles, outside [%d, %d]", prefix, th.PeriodUs, p, sched.WindowLowest, sched.WindowHighest)
		}
	}
	if th.Budgeted() {
		if th.PeriodUs == 0 {
			return fmt.Errorf("%s: budget_us requires period_us", prefix)
		}
		if th.BudgetUs > th.PeriodUs {
			return fmt.Errorf("%s: budget_us %d exceeds period_us %d", prefix, th.BudgetUs, th.PeriodUs)
		}
	}
	if th.Behaviour != BehaviourSpin && th.WorkUs == 0 {
		return fmt.Errorf("%s: behaviour %q requires work_us", prefix, th.Behaviour)
	}
	if th.Behaviour == BehaviourPeriodic && !th.Budgeted() {
		return fmt.Errorf("%s: periodic behaviour requires budget_us", prefix)
	}
	if th.Behaviour == BehaviourSleep && th.SleepUs == 0 {
		return fmt.Errorf("%s: sleep behaviour requires sleep_us", prefix)
	}
	return nil
}
