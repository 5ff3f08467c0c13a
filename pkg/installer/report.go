package installer

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Category classifies one collected failure of an engine run.
type Category int

const (
	// CategoryStep marks a non-fatal engine step failure: environment
	// persistence, cargo config, install record writes.
	CategoryStep Category = iota
	// CategoryTool marks one tool that failed to install or remove.
	CategoryTool
	// CategoryRust marks a toolchain failure.
	CategoryRust
)

func (c Category) String() string {
	switch c {
	case CategoryTool:
		return "tool"
	case CategoryRust:
		return "rust"
	}
	return "step"
}

// Failure is one collected error with its category and subject.
type Failure struct {
	Category Category
	Name     string
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Category, f.Name, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Report aggregates the non-fatal failures of one engine run. A run
// that returns a non-empty report still counts as completed; callers
// decide how loudly to surface the contents.
type Report struct {
	failures []*Failure
}

func (r *Report) add(cat Category, name string, err error) {
	if err == nil {
		return
	}
	r.failures = append(r.failures, &Failure{Category: cat, Name: name, Err: err})
}

// Failures returns the collected failures in occurrence order.
func (r *Report) Failures() []*Failure {
	return r.failures
}

// HasFailures reports whether anything went wrong during the run.
func (r *Report) HasFailures() bool {
	return len(r.failures) > 0
}

// Err folds the failures into a single error, nil for a clean run.
func (r *Report) Err() error {
	var merr *multierror.Error
	for _, f := range r.failures {
		merr = multierror.Append(merr, f)
	}
	return merr.ErrorOrNil()
}
