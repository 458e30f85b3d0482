package trace

// Summary aggregates statistics from a set of records.
type Summary struct {
	TotalRecords int
	ByName       map[string]int   // event name → count
	ThreadCounts map[uint32]int   // tid → number of records about it
	Replenished  map[uint32]int64 // tid → cycles restored by replenish events
	Dispatches   map[uint32]int   // tid → schedule events naming it
	FirstClock   uint64
	LastClock    uint64
}

// Summarize computes aggregate statistics from records.
// Safe for nil or empty input (returns zero-value fields with non-nil maps).
func Summarize(records []Record) *Summary {
	s := &Summary{
		ByName:       make(map[string]int),
		ThreadCounts: make(map[uint32]int),
		Replenished:  make(map[uint32]int64),
		Dispatches:   make(map[uint32]int),
	}
	for i, r := range records {
		if i == 0 || r.Clock < s.FirstClock {
			s.FirstClock = r.Clock
		}
		if r.Clock > s.LastClock {
			s.LastClock = r.Clock
		}
		s.TotalRecords++
		s.ByName[r.Name]++
		if r.TID == 0 {
			continue
		}
		s.ThreadCounts[r.TID]++
		switch r.Name {
		case EventReplenish:
			if amount, ok := r.Get("amount"); ok {
				s.Replenished[r.TID] += amount
			}
		case EventSchedule:
			s.Dispatches[r.TID]++
		}
	}
	return s
}
