package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// progressBar renders a single-line bar on a terminal. When the
// output is not a terminal it stays silent.
type progressBar struct {
	w     io.Writer
	total int64
	done  int64
	width int
	live  bool
	last  int // last rendered percent, to limit redraws
}

func newProgressBar(w io.Writer) *progressBar {
	bar := &progressBar{w: w, width: 40, last: -1}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bar.live = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			bar.width = cols / 2
		}
	}
	return bar
}

func (b *progressBar) Reset(total int64) {
	b.total = total
	b.done = 0
	b.last = -1
	b.render()
}

func (b *progressBar) Update(n int) {
	b.done += int64(n)
	b.render()
}

// Finish terminates the bar line.
func (b *progressBar) Finish() {
	if b.live && b.last >= 0 {
		fmt.Fprintln(b.w)
	}
}

func (b *progressBar) render() {
	if !b.live || b.total <= 0 {
		return
	}
	pct := int(b.done * 100 / b.total)
	if pct > 100 {
		pct = 100
	}
	if pct == b.last {
		return
	}
	b.last = pct
	filled := b.width * pct / 100
	fmt.Fprintf(b.w, "\r[%s%s] %3d%%",
		strings.Repeat("#", filled), strings.Repeat(" ", b.width-filled), pct)
}
