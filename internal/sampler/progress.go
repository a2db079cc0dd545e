package sampler

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// progressPrinter redraws a one-line acceptance counter on a terminal.
// On non-terminal writers it stays silent, so piping output elsewhere
// never mixes progress noise into it.
type progressPrinter struct {
	w            *os.File
	n            int
	enabled      bool
	lastAccepted int
}

func newProgressPrinter(w *os.File, n int) *progressPrinter {
	enabled := isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd())
	return &progressPrinter{w: w, n: n, enabled: enabled, lastAccepted: -1}
}

func (p *progressPrinter) update(accepted, evaluations int) {
	if !p.enabled {
		return
	}
	if accepted == p.lastAccepted && evaluations%1000 != 0 {
		return
	}
	p.lastAccepted = accepted
	fmt.Fprintf(p.w, "\raccepted %d/%d after %s evaluations", accepted, p.n, humanize.Comma(int64(evaluations)))
}

func (p *progressPrinter) finish() {
	if !p.enabled {
		return
	}
	fmt.Fprintln(p.w)
}
