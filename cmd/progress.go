// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/cinder/pkg/burner"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	stageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	retryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	addrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Renderer renders engine progress events as terminal status lines. On a TTY
// the program stage redraws a single progress line in place; when piped, only
// stage transitions are printed.
type Renderer struct {
	out         io.Writer
	tty         bool
	midProgress bool
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Renderer{out: out, tty: tty}
}

// Emit implements burner.EventSink.
func (r *Renderer) Emit(e burner.Event) {
	switch {
	case e.Attempt > 0:
		r.endProgress()
		fmt.Fprintf(r.out, "%s %s (attempt %d)\n",
			retryStyle.Render("retry:"), e.Message, e.Attempt)

	case e.Stage == burner.StageProgram && e.Total > 0:
		if !r.tty {
			if e.Chunk == e.Chunks {
				fmt.Fprintf(r.out, "%s %s %d/%d bytes\n",
					stageStyle.Render("program"), r.addr(e.Addr), e.Bytes, e.Total)
			}
			return
		}
		pct := float64(e.Bytes) / float64(e.Total) * 100
		fmt.Fprintf(r.out, "\r%s %s %3.0f%% (%d/%d)",
			stageStyle.Render("program"), r.addr(e.Addr), pct, e.Chunk, e.Chunks)
		r.midProgress = true
		if e.Chunk == e.Chunks {
			r.endProgress()
		}

	default:
		r.endProgress()
		if e.Addr != 0 {
			fmt.Fprintf(r.out, "%s %s %s\n", stageStyle.Render(string(e.Stage)), r.addr(e.Addr), e.Message)
		} else {
			fmt.Fprintf(r.out, "%s %s\n", stageStyle.Render(string(e.Stage)), e.Message)
		}
	}
}

func (r *Renderer) addr(a uint32) string {
	return addrStyle.Render(fmt.Sprintf("0x%08X", a))
}

func (r *Renderer) endProgress() {
	if r.midProgress {
		fmt.Fprintln(r.out)
		r.midProgress = false
	}
}
