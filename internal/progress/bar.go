package progress

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar is a byte progress bar. A nil *Bar is valid and renders nothing.
type Bar struct {
	bar *progressbar.ProgressBar
}

func NewBar(w io.Writer, total int64, description string) *Bar {
	return &Bar{bar: progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)}
}

func (b *Bar) Add(n int64) {
	if b == nil {
		return
	}
	_ = b.bar.Add64(n)
}

// Report lets a Bar act as a Reporter for byte events.
func (b *Bar) Report(e Event) {
	if b == nil {
		return
	}
	_ = b.bar.Set64(int64(e.Step))
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}

// Reader wraps r so that every read advances the bar.
func (b *Bar) Reader(r io.Reader) io.Reader {
	if b == nil {
		return r
	}
	return &barReader{r: r, bar: b}
}

type barReader struct {
	r   io.Reader
	bar *Bar
}

func (r *barReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.bar.Add(int64(n))
	return n, err
}
