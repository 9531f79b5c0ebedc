// Package progress renders progress of long running git and copy operations.
//
// Reporters are invoked synchronously from inside blocking transport and
// checkout calls, so they must return quickly and must never fail the caller.
package progress

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// Event is a point-in-time measurement: either Step of Total discrete units
// or, when Bytes is set, Step of Total bytes.
type Event struct {
	Step  uint64
	Total uint64
	Bytes bool
}

func (e Event) Final() bool {
	return e.Total > 0 && e.Step >= e.Total
}

type Reporter interface {
	Report(Event)
}

// Func adapts a plain function to a Reporter.
type Func func(Event)

func (f Func) Report(e Event) {
	f(e)
}

// Discard drops every event.
var Discard Reporter = Func(func(Event) {})

// Format renders the completion of e as a percentage with two decimals, or
// "Indeterminable" when the total is not known.
func Format(e Event) string {
	if e.Total == 0 {
		return "Indeterminable"
	}
	return fmt.Sprintf("%.2f%%", float64(e.Step)/float64(e.Total)*100)
}

const defaultInterval = 100 * time.Millisecond

// Line overwrites a single terminal line in place with the latest event.
// Line is not safe for concurrent use.
type Line struct {
	w       io.Writer
	limiter *rate.Sometimes
	dirty   bool
}

func NewLine(w io.Writer) *Line {
	return &Line{w: w, limiter: &rate.Sometimes{Interval: defaultInterval}}
}

// WithInterval sets the minimum time between two rendered events. A zero
// interval renders every event. Final events are always rendered.
func (l *Line) WithInterval(d time.Duration) *Line {
	l.limiter = nil
	if d > 0 {
		l.limiter = &rate.Sometimes{Interval: d}
	}
	return l
}

func (l *Line) Report(e Event) {
	if e.Final() || l.limiter == nil {
		l.render(e)
		return
	}
	l.limiter.Do(func() { l.render(e) })
}

func (l *Line) render(e Event) {
	l.dirty = true
	_, _ = fmt.Fprintf(l.w, "\rProgress: %s", Format(e))
}

// Done terminates the progress line, if anything was written to it.
func (l *Line) Done() {
	if l.dirty {
		_, _ = fmt.Fprintln(l.w)
		l.dirty = false
	}
}
