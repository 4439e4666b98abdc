package builder

import (
	"fmt"
	"strings"
)

// ValidationError reports everything wrong with a job before any step is
// built. Nothing has been mutated when it is returned.
type ValidationError struct {
	Job      string
	Problems []string
	// Cause is set when a problem came from a wrapped error.
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("job %q is invalid: %s", e.Job, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// problems collects validation failures for one job.
type problems struct {
	job  string
	list []string
}

func (p *problems) addf(format string, args ...any) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

func (p *problems) err() error {
	if len(p.list) == 0 {
		return nil
	}
	return &ValidationError{Job: p.job, Problems: p.list}
}
