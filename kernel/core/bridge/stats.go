package bridge

import "sync/atomic"

// Stats counts routing outcomes. Safe for concurrent use.
type Stats struct {
	dispatched   atomic.Uint64
	mocked       atomic.Uint64
	fired        atomic.Uint64
	rejected     atomic.Uint64
	resolved     atomic.Uint64
	events       atomic.Uint64
	stale        atomic.Uint64
	unknownTag   atomic.Uint64
	tagMismatch  atomic.Uint64
	decodeErrors atomic.Uint64
	malformed    atomic.Uint64
	timeouts     atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Dispatched   uint64 `json:"dispatched"`
	Mocked       uint64 `json:"mocked"`
	Fired        uint64 `json:"fired"`
	Rejected     uint64 `json:"rejected"`
	Resolved     uint64 `json:"resolved"`
	Events       uint64 `json:"events"`
	Stale        uint64 `json:"stale"`
	UnknownTag   uint64 `json:"unknownTag"`
	TagMismatch  uint64 `json:"tagMismatch"`
	DecodeErrors uint64 `json:"decodeErrors"`
	Malformed    uint64 `json:"malformed"`
	Timeouts     uint64 `json:"timeouts"`
	Pending      int    `json:"pending"`
}

// Snapshot copies the counters. Pending is filled in by the owner.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Dispatched:   s.dispatched.Load(),
		Mocked:       s.mocked.Load(),
		Fired:        s.fired.Load(),
		Rejected:     s.rejected.Load(),
		Resolved:     s.resolved.Load(),
		Events:       s.events.Load(),
		Stale:        s.stale.Load(),
		UnknownTag:   s.unknownTag.Load(),
		TagMismatch:  s.tagMismatch.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Malformed:    s.malformed.Load(),
		Timeouts:     s.timeouts.Load(),
	}
}

// ToMap flattens the snapshot for js.ValueOf.
func (s StatsSnapshot) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"dispatched":   int(s.Dispatched),
		"mocked":       int(s.Mocked),
		"fired":        int(s.Fired),
		"rejected":     int(s.Rejected),
		"resolved":     int(s.Resolved),
		"events":       int(s.Events),
		"stale":        int(s.Stale),
		"unknownTag":   int(s.UnknownTag),
		"tagMismatch":  int(s.TagMismatch),
		"decodeErrors": int(s.DecodeErrors),
		"malformed":    int(s.Malformed),
		"timeouts":     int(s.Timeouts),
		"pending":      s.Pending,
	}
}
