// Package observ collects wall-clock timings for CLI reports.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Part is one sub-step of a step, such as a single build stage.
type Part struct {
	Name string
	Dur  time.Duration
}

type step struct {
	name  string
	took  time.Duration
	note  string
	parts []Part
}

// Timer accumulates named steps in the order they finish. Not safe for
// concurrent use.
type Timer struct {
	steps []step
	now   func() time.Time
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer { return &Timer{now: time.Now} }

// Start begins timing name. The returned func records the step with a note;
// calls after the first are ignored.
func (t *Timer) Start(name string) func(note string) {
	began := t.now()
	stopped := false
	return func(note string) {
		if stopped {
			return
		}
		stopped = true
		t.steps = append(t.steps, step{name: name, took: t.now().Sub(began), note: note})
	}
}

// Record appends a step measured elsewhere. Zero-length parts are dropped.
func (t *Timer) Record(name string, took time.Duration, note string, parts ...Part) {
	s := step{name: name, took: took, note: note}
	for _, part := range parts {
		if part.Dur > 0 {
			s.parts = append(s.parts, part)
		}
	}
	t.steps = append(t.steps, s)
}

// PartReport is the serializable form of a Part.
type PartReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
}

// StepReport is the serializable form of one timed step.
type StepReport struct {
	Name       string       `json:"name"`
	DurationMS float64      `json:"duration_ms"`
	Note       string       `json:"note,omitempty"`
	Parts      []PartReport `json:"parts,omitempty"`
}

// Report lists every recorded step. Parts are contained in their step and do
// not count toward the total.
type Report struct {
	TotalMS float64      `json:"total_ms"`
	Steps   []StepReport `json:"steps"`
}

// Report snapshots the recorded steps.
func (t *Timer) Report() Report {
	var rep Report
	var total time.Duration
	for _, s := range t.steps {
		total += s.took
		sr := StepReport{Name: s.name, DurationMS: millis(s.took), Note: s.note}
		for _, part := range s.parts {
			sr.Parts = append(sr.Parts, PartReport{Name: part.Name, DurationMS: millis(part.Dur)})
		}
		rep.Steps = append(rep.Steps, sr)
	}
	rep.TotalMS = millis(total)
	return rep
}

// Summary renders the report as an indented text table.
func (t *Timer) Summary() string {
	rep := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	row := func(indent int, name string, ms float64, note string) {
		fmt.Fprintf(&sb, "%*s%-*s %9.2f ms", indent, "", 22-indent, name, ms)
		if note != "" {
			fmt.Fprintf(&sb, "  // %s", note)
		}
		sb.WriteByte('\n')
	}
	for _, s := range rep.Steps {
		row(2, s.Name, s.DurationMS, s.Note)
		for _, p := range s.Parts {
			row(4, p.Name, p.DurationMS, "")
		}
	}
	row(2, "total", rep.TotalMS, "")
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
