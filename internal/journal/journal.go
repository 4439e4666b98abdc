// Package journal defines the execution journal: an append-only record of
// bake progress that survives a process crash.
//
// # Why the Journal Exists
//
// The host process can die in the middle of a render. The journal lets the
// next start answer two questions without any in-memory state: did the last
// session finish cleanly, and if not, which object and channel was being
// baked when it stopped.
//
// # Guarantees
//
// Implementations MUST make every record durable before Record returns. A
// step that has no record at all was never reached. A step whose last record
// is STARTED or IN_PROGRESS was interrupted.
//
// See internal/filejournal for the file-backed implementation.
package journal

import (
	"context"
	"fmt"
	"time"
)

// Phase is the progress of one step.
type Phase string

const (
	PhaseStarted    Phase = "STARTED"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseCommitted  Phase = "COMMITTED"
	PhaseFailed     Phase = "FAILED"
)

// Terminal reports whether the phase closes a step.
func (p Phase) Terminal() bool {
	return p == PhaseCommitted || p == PhaseFailed
}

// Header opens a session.
type Header struct {
	JobID string
	Job   string
	Steps int
}

// Entry is one step progress record.
type Entry struct {
	Step     int
	Phase    Phase
	Object   string
	Channel  string
	Material string
	Tile     int
	Message  string
}

// Journal opens sessions and reports on the most recent one.
type Journal interface {
	// Open starts a new session. The header is durable when Open returns.
	Open(ctx context.Context, h Header) (Session, error)

	// LastSession summarizes the most recent session, or returns nil when
	// there is none.
	LastSession(ctx context.Context) (*SessionSummary, error)
}

// Session records the progress of one job run.
type Session interface {
	ID() string

	// Record appends an entry. It fails with a *WriteError if the entry could
	// not be made durable.
	Record(ctx context.Context, e Entry) error

	// Close marks the session finished with the job's final state.
	Close(ctx context.Context, state string) error
}

// WriteError is returned when a record could not be made durable. It is fatal
// to the step being recorded, not to the job.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("journal write to %s failed: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Record is the serialized form shared by journal implementations. Type is
// "session", "step" or "close".
type Record struct {
	Type      string    `json:"type"`
	Time      time.Time `json:"ts"`
	SessionID string    `json:"session_id,omitempty"`
	JobID     string    `json:"job_id,omitempty"`
	Job       string    `json:"job,omitempty"`
	Steps     int       `json:"steps,omitempty"`
	Step      int       `json:"step"`
	Phase     Phase     `json:"phase,omitempty"`
	Object    string    `json:"object,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Material  string    `json:"material,omitempty"`
	Tile      int       `json:"tile,omitempty"`
	Message   string    `json:"message,omitempty"`
	State     string    `json:"state,omitempty"`
}

// Record types.
const (
	RecordSession = "session"
	RecordStep    = "step"
	RecordClose   = "close"
)

// EntryRecord converts an entry into its serialized form.
func EntryRecord(e Entry, now time.Time) Record {
	return Record{
		Type:     RecordStep,
		Time:     now,
		Step:     e.Step,
		Phase:    e.Phase,
		Object:   e.Object,
		Channel:  e.Channel,
		Material: e.Material,
		Tile:     e.Tile,
		Message:  e.Message,
	}
}
