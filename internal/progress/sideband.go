package progress

import (
	"bytes"
	"regexp"
	"strconv"
)

// git servers report progress as lines such as
// "Receiving objects:  45% (9/20), 1.20 MiB | 2.00 MiB/s", separated by
// carriage returns or newlines.
var sidebandCounter = regexp.MustCompile(`\((\d+)/(\d+)\)`)

// SidebandWriter turns git side-band progress text into events. It is meant
// to be used as the Progress writer of go-git fetch and clone options.
type SidebandWriter struct {
	r   Reporter
	buf []byte
}

func NewSidebandWriter(r Reporter) *SidebandWriter {
	return &SidebandWriter{r: r}
}

func (w *SidebandWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.line(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *SidebandWriter) line(l []byte) {
	m := sidebandCounter.FindSubmatch(l)
	if m == nil {
		return
	}
	step, err := strconv.ParseUint(string(m[1]), 10, 64)
	if err != nil {
		return
	}
	total, err := strconv.ParseUint(string(m[2]), 10, 64)
	if err != nil {
		return
	}
	w.r.Report(Event{Step: step, Total: total})
}
