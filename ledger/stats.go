package ledger

import "sort"

// Stats aggregates delivery records.
type Stats struct {
	Total       int64            `json:"total" yaml:"total"`
	Sent        int64            `json:"sent" yaml:"sent"`
	Persisted   int64            `json:"persisted" yaml:"persisted"`
	Quarantined int64            `json:"quarantined" yaml:"quarantined"`
	Bytes       int64            `json:"bytes" yaml:"bytes"`
	ByKind      map[string]int64 `json:"by_error_kind" yaml:"by_error_kind"`
	BySide      map[string]int64 `json:"by_side" yaml:"by_side"`
	FirstTs     string           `json:"first_ts,omitempty" yaml:"first_ts,omitempty"`
	LastTs      string           `json:"last_ts,omitempty" yaml:"last_ts,omitempty"`
	Recent      []Record         `json:"recent_failures,omitempty" yaml:"recent_failures,omitempty"`
}

// SuccessRate returns the fraction of successful outcomes, or 0 when empty.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Sent+s.Persisted) / float64(s.Total)
}

// Aggregate summarizes records. recentFailures caps the number of most
// recent quarantined records kept for display.
func Aggregate(records []Record, recentFailures int) Stats {
	s := Stats{
		ByKind: make(map[string]int64),
		BySide: make(map[string]int64),
	}
	var failures []Record
	for _, r := range records {
		s.Total++
		s.Bytes += r.Bytes
		s.BySide[r.Side]++
		switch r.Outcome {
		case "sent":
			s.Sent++
		case "persisted":
			s.Persisted++
		case "quarantined":
			s.Quarantined++
			kind := r.ErrorKind
			if kind == "" {
				kind = "unknown"
			}
			s.ByKind[kind]++
			failures = append(failures, r)
		}
		if s.FirstTs == "" || r.Ts < s.FirstTs {
			s.FirstTs = r.Ts
		}
		if r.Ts > s.LastTs {
			s.LastTs = r.Ts
		}
	}

	sort.SliceStable(failures, func(i, j int) bool { return failures[i].Ts > failures[j].Ts })
	if recentFailures >= 0 && len(failures) > recentFailures {
		failures = failures[:recentFailures]
	}
	s.Recent = failures
	return s
}
