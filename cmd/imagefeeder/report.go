package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"imagefeeder/internal/preflight"
	"imagefeeder/internal/session"
)

// palette colors terminal output. The zero value prints plain text.
type palette struct {
	enabled bool
}

func paletteFor(w io.Writer) palette {
	file, ok := w.(*os.File)
	if !ok {
		return palette{}
	}
	fd := file.Fd()
	return palette{enabled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p palette) paint(s string, colors ...text.Color) string {
	if !p.enabled || len(colors) == 0 {
		return s
	}
	return text.Colors(colors).Sprint(s)
}

func (p palette) outcome(o session.Outcome) string {
	switch o {
	case session.Committed:
		return p.paint(o.String(), text.FgGreen)
	case session.Failed:
		return p.paint(o.String(), text.FgRed)
	default:
		return p.paint(o.String(), text.FgYellow)
	}
}

// writeChecks prints one line per preflight result, names padded to the
// longest one so details line up.
func writeChecks(out io.Writer, p palette, configPath string, results []preflight.Result) {
	width := len("Config")
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	fmt.Fprintln(out, p.paint("Preflight", text.Bold))
	if configPath != "" {
		fmt.Fprintf(out, "  %-7s %-*s  %s\n", "", width, "Config", configPath)
	}
	for _, r := range results {
		label, color := "[OK]", text.FgGreen
		if !r.Passed {
			label, color = "[ERROR]", text.FgRed
		}
		fmt.Fprintf(out, "  %s %-*s  %s\n", p.paint(fmt.Sprintf("%-7s", label), color), width, r.Name, r.Detail)
	}
}
