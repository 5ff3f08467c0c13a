package progress

import (
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Terminal renders progress with one line per indicator on the given
// writer. The master bar is re-rendered after each sub-indicator finishes
// so the overall position stays visible between steps.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	master *progressbar.ProgressBar
	sub    *progressbar.ProgressBar
}

// NewTerminal returns a Terminal writing to stdout.
func NewTerminal() *Terminal {
	return &Terminal{out: os.Stdout}
}

// NewTerminalTo returns a Terminal writing to w.
func NewTerminalTo(w io.Writer) *Terminal {
	return &Terminal{out: w}
}

func (t *Terminal) bar(label string, kind Kind) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetWriter(t.out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(30),
	}
	total := kind.Total
	switch kind.Style {
	case StyleBytes:
		opts = append(opts, progressbar.OptionShowBytes(true))
	case StyleSpinner:
		total = -1
		if kind.Tick > 0 {
			opts = append(opts, progressbar.OptionSetSpinnerChangeInterval(kind.Tick))
		}
	}
	return progressbar.NewOptions64(total, opts...)
}

func (t *Terminal) Start(label string, kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sub = t.bar(label, kind)
}

func (t *Terminal) Update(delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		_ = t.sub.Add64(delta)
	}
}

func (t *Terminal) Finish(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		_ = t.sub.Finish()
		t.sub = nil
	}
	if label != "" {
		_, _ = io.WriteString(t.out, label+"\n")
	}
}

func (t *Terminal) MasterStart(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.master = t.bar(label, Len(100))
}

func (t *Terminal) MasterUpdate(delta int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.master != nil {
		_ = t.master.Add64(delta)
	}
}

func (t *Terminal) MasterFinish(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.master != nil {
		_ = t.master.Finish()
		t.master = nil
	}
	if label != "" {
		_, _ = io.WriteString(t.out, label+"\n")
	}
}

var _ Handler = (*Terminal)(nil)
