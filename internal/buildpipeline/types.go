package buildpipeline

import "time"

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageFingerprint resolves sources and computes the cache key.
	StageFingerprint Stage = "fingerprint"
	// StageShim writes the generated shim and support header.
	StageShim Stage = "shim"
	// StageVerilate runs the HDL translator.
	StageVerilate Stage = "verilate"
	// StageCompile runs the native toolchain.
	StageCompile Stage = "compile"
	// StageInstall copies the artifact into the cache.
	StageInstall Stage = "install"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusCached indicates the artifact was reused from the cache.
	StatusCached Status = "cached"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a module (or for the whole batch when Module is empty).
type Event struct {
	Module  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// StageTiming is the measured duration of one stage.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Timings holds stage durations in the order the stages ran.
type Timings struct {
	stages []StageTiming
}

func (t Timings) find(stage Stage) int {
	for i, st := range t.stages {
		if st.Stage == stage {
			return i
		}
	}
	return -1
}

// Set stores a duration for the given stage, replacing an earlier one.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	if i := t.find(stage); i >= 0 {
		t.stages[i].Duration = dur
		return
	}
	t.stages = append(t.stages, StageTiming{Stage: stage, Duration: dur})
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool { return t.find(stage) >= 0 }

// Duration returns the recorded duration for stage, or zero.
func (t Timings) Duration(stage Stage) time.Duration {
	if i := t.find(stage); i >= 0 {
		return t.stages[i].Duration
	}
	return 0
}

// Stages returns the recorded stages in execution order.
func (t Timings) Stages() []StageTiming {
	return append([]StageTiming(nil), t.stages...)
}

// Total returns the sum of every recorded stage.
func (t Timings) Total() time.Duration {
	var total time.Duration
	for _, st := range t.stages {
		total += st.Duration
	}
	return total
}
