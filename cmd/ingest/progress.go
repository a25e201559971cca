package main

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// progress renders one progress bar at a time. Updates may come from fetch
// workers concurrently.
type progress struct {
	out     io.Writer
	enabled bool

	mu   sync.Mutex
	desc string
	bar  *progressbar.ProgressBar
}

func newProgress(out io.Writer, enabled bool) *progress {
	return &progress{out: out, enabled: enabled}
}

// begin starts a new phase. The bar is created on the first update, once the
// total is known.
func (p *progress) begin(desc string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.desc = desc
	p.bar = nil
}

func (p *progress) update(done, total int) {
	if !p.enabled || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(p.desc),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		_, _ = io.WriteString(p.out, "\n")
		p.bar = nil
	}
}
