package journal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// StepRef identifies a step as last recorded.
type StepRef struct {
	Step     int
	Phase    Phase
	Object   string
	Channel  string
	Material string
	Tile     int
	Message  string
}

// SessionSummary is the state of a session reconstructed from its records.
type SessionSummary struct {
	SessionID  string
	JobID      string
	Job        string
	Started    time.Time
	TotalSteps int

	Closed     bool
	FinalState string

	// Interrupted is the step whose last record is not terminal, if any.
	Interrupted *StepRef
	// Steps holds the last record of every step that was reached.
	Steps map[int]StepRef
}

// Summarize folds a session's records in file order.
func Summarize(records []Record) *SessionSummary {
	s := &SessionSummary{Steps: map[int]StepRef{}}
	for _, r := range records {
		switch r.Type {
		case RecordSession:
			s.SessionID = r.SessionID
			s.JobID = r.JobID
			s.Job = r.Job
			s.Started = r.Time
			s.TotalSteps = r.Steps
		case RecordStep:
			s.Steps[r.Step] = StepRef{
				Step:     r.Step,
				Phase:    r.Phase,
				Object:   r.Object,
				Channel:  r.Channel,
				Material: r.Material,
				Tile:     r.Tile,
				Message:  r.Message,
			}
		case RecordClose:
			s.Closed = true
			s.FinalState = r.State
		}
	}

	indexes := make([]int, 0, len(s.Steps))
	for i := range s.Steps {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		if ref := s.Steps[i]; !ref.Phase.Terminal() {
			s.Interrupted = &ref
			break
		}
	}
	return s
}

// Unclean reports whether the session needs attention: a step was cut off
// mid-flight or the session never closed.
func (s *SessionSummary) Unclean() bool {
	return !s.Closed || s.Interrupted != nil
}

// Reached returns the last recorded state of a step. A step without records
// was never reached.
func (s *SessionSummary) Reached(step int) (StepRef, bool) {
	ref, ok := s.Steps[step]
	return ref, ok
}

// Count returns how many steps ended in the given phase.
func (s *SessionSummary) Count(p Phase) int {
	n := 0
	for _, ref := range s.Steps {
		if ref.Phase == p {
			n++
		}
	}
	return n
}

// Banner is the user-facing crash notice for an unclean session, or "" when
// the session ended cleanly.
func (s *SessionSummary) Banner() string {
	if !s.Unclean() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The previous bake of job %q (session %s) did not finish cleanly", s.Job, s.SessionID)
	if ref := s.Interrupted; ref != nil {
		fmt.Fprintf(&b, ": interrupted at step %d of %d while baking channel %q of object %q", ref.Step+1, s.TotalSteps, ref.Channel, ref.Object)
		if ref.Material != "" {
			fmt.Fprintf(&b, " (material %q)", ref.Material)
		}
		if ref.Tile != 0 {
			fmt.Fprintf(&b, " (tile %d)", ref.Tile)
		}
	} else {
		fmt.Fprintf(&b, ": it stopped after %d of %d steps without closing its journal", len(s.Steps), s.TotalSteps)
	}
	b.WriteString(". Run `bakegrid cleanup` to remove leftover temporary data.")
	return b.String()
}
