// Package metrics records job, phase and sweeper metrics.
package metrics

import "time"

// Recorder receives measurements from the cleaning service.
type Recorder interface {
	// RecordJob records a finished job. Kind is "process" or "preview";
	// outcome is "success" or an error kind.
	RecordJob(kind, format, outcome string, duration time.Duration)

	// RecordPhase records one orchestration phase.
	RecordPhase(phase string, success bool, duration time.Duration)

	// RecordRowsRemoved records rows removed by cleaning, by reason.
	RecordRowsRemoved(reason string, n int)

	// RecordBytes records bytes moved in a direction ("downloaded", "written").
	RecordBytes(direction string, n int64)

	// RecordSweep records a sweeper run and the files it deleted per kind.
	RecordSweep(success bool, duration time.Duration, deleted map[string]int)

	IncActiveJobs()
	DecActiveJobs()
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordJob(string, string, string, time.Duration) {}
func (Nop) RecordPhase(string, bool, time.Duration)         {}
func (Nop) RecordRowsRemoved(string, int)                   {}
func (Nop) RecordBytes(string, int64)                       {}
func (Nop) RecordSweep(bool, time.Duration, map[string]int) {}
func (Nop) IncActiveJobs()                                  {}
func (Nop) DecActiveJobs()                                  {}
