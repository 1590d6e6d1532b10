// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package realtime

// Outcome is the dedup classification of one vehicle entity.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeCached
	OutcomePersisted
	OutcomeNew
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCached:
		return "cached"
	case OutcomePersisted:
		return "persisted"
	case OutcomeNew:
		return "new"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Summary counts one run.
type Summary struct {
	Entities  int
	Skipped   int
	Cached    int
	Persisted int
	New       int
	Failed    int
	// Inserted is how many staged records the store accepted. The
	// difference to New is natural-key conflicts.
	Inserted  int
	Published int
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeCached:
		s.Cached++
	case OutcomePersisted:
		s.Persisted++
	case OutcomeNew:
		s.New++
	case OutcomeFailed:
		s.Failed++
	}
}
