package prompt

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Bar is a progress bar that does nothing when disabled.
type Bar struct {
	enabled bool
	out     io.Writer
	bar     *progressbar.ProgressBar
}

// NewBar returns a bar drawing on stderr when enabled.
func NewBar(enabled bool) *Bar {
	return &Bar{enabled: enabled, out: os.Stderr}
}

// DefaultProgressEnabled reports whether stderr is a terminal.
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// Start begins a new bar of total steps, finishing any previous one.
func (b *Bar) Start(total int, desc string) {
	b.Finish()
	if !b.enabled || total <= 0 {
		return
	}
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// Set moves the bar to n completed steps.
func (b *Bar) Set(n int) {
	if b.bar == nil {
		return
	}
	_ = b.bar.Set(n)
}

// Describe replaces the bar description.
func (b *Bar) Describe(desc string) {
	if b.bar == nil {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes and clears the bar.
func (b *Bar) Finish() {
	if b.bar == nil {
		return
	}
	_ = b.bar.Finish()
	b.bar = nil
}
