// Package progress defines the progress-reporting abstraction consumed by
// the install engine and its leaf operations (downloads, extraction), plus
// a terminal implementation. At most one sub-indicator is active at a time;
// the master bar tracks the overall run on a fixed 0..100 scale.
package progress

import "time"

// Style selects how an indicator renders and how Update values are read.
type Style int

const (
	// StyleLen counts discrete entries toward a known total.
	StyleLen Style = iota
	// StyleBytes counts bytes toward a known total.
	StyleBytes
	// StyleSpinner ticks without a known total.
	StyleSpinner
)

// Kind describes one indicator: its style plus the total (Len/Bytes) or
// the tick interval (Spinner).
type Kind struct {
	Style Style
	Total int64
	Tick  time.Duration
}

// Len returns a Kind counting n discrete entries.
func Len(n int64) Kind { return Kind{Style: StyleLen, Total: n} }

// Bytes returns a Kind counting n bytes.
func Bytes(n int64) Kind { return Kind{Style: StyleBytes, Total: n} }

// Spinner returns an indeterminate Kind with the default 100ms tick.
func Spinner() Kind { return Kind{Style: StyleSpinner, Tick: 100 * time.Millisecond} }

// Handler receives progress events. Start/Update/Finish drive the current
// sub-indicator; the Master variants drive the run-wide bar. Update deltas
// are additive.
type Handler interface {
	Start(label string, kind Kind)
	Update(delta int64)
	Finish(label string)

	MasterStart(label string)
	MasterUpdate(delta int64)
	MasterFinish(label string)
}

// Discard is a Handler that drops every event. Useful for tests and for
// quiet mode.
type Discard struct{}

func (Discard) Start(string, Kind)  {}
func (Discard) Update(int64)        {}
func (Discard) Finish(string)       {}
func (Discard) MasterStart(string)  {}
func (Discard) MasterUpdate(int64)  {}
func (Discard) MasterFinish(string) {}

var _ Handler = Discard{}
