package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the wmbridge banner to w.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text, color string
	}{
		{"                    _          _     _", "#818cf8"},
		{" __ __ ___ __ _   | |__  _ _(_)__| |__ _ ___", "#a78bfa"},
		{" \\ V  V / '  \\ |  | '_ \\| '_| / _` / _` / -_)", "#c084fc"},
		{"  \\_/\\_/|_|_|_|   |_.__/|_| |_\\__,_\\__, \\___|", "#e879f9"},
		{"                                    |___/", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
