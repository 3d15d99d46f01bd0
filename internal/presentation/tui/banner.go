package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the Cadence banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"   ____          _", "#818cf8"},
		{"  / ___|__ _  __| | ___ _ __   ___ ___", "#a78bfa"},
		{" | |   / _` |/ _` |/ _ \\ '_ \\ / __/ _ \\", "#c084fc"},
		{" | |__| (_| | (_| |  __/ | | | (_|  __/", "#e879f9"},
		{"  \\____\\__,_|\\__,_|\\___|_| |_|\\___\\___|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Status colours a task or run status for terminal output.
func Status(status string) string {
	p := termenv.ColorProfile()
	color := "#9ca3af"
	switch status {
	case "completed", "success":
		color = "#22c55e"
	case "failed":
		color = "#ef4444"
	case "cancelled":
		color = "#f59e0b"
	case "running":
		color = "#38bdf8"
	}
	return termenv.String(status).Foreground(p.Color(color)).Bold().String()
}
