// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Package progress renders an entry counter bar on interactive terminals.
package progress

import (
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// descLength is width of the dynamic entry name column.
const descLength = 32

// Progress is a progress bar that is a no-op when disabled or off-terminal.
type Progress struct {
	container   *mpb.Progress
	bar         *mpb.Bar
	description string
	mu          sync.Mutex
}

// New creates a progress bar for total entries labeled with title.
func New(title string, total int, enabled bool) *Progress {
	p := &Progress{}
	if !enabled || total <= 0 || !isTerminal() {
		return p
	}

	p.container = mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(64),
		mpb.WithRefreshRate(100*time.Millisecond),
	)

	p.bar = p.container.New(int64(total),
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(title, decor.WC{C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string {
				p.mu.Lock()
				defer p.mu.Unlock()
				if len(p.description) > descLength {
					return ".." + p.description[len(p.description)-descLength+2:]
				}
				return p.description
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	return p
}

// Increment advances the bar by one and shows description.
// Safe for concurrent use.
func (p *Progress) Increment(description string) {
	if p == nil || p.bar == nil {
		return
	}

	p.mu.Lock()
	p.description = description
	p.mu.Unlock()

	p.bar.Increment()
}

// Finish completes the bar and waits for final render.
func (p *Progress) Finish() {
	if p == nil || p.container == nil {
		return
	}

	if !p.bar.Completed() {
		p.bar.Abort(false)
	}

	p.container.Wait()
}

// isTerminal checks if stderr is a terminal (TTY).
func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
