package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	"                 _        __ _",
	" _ __ ___ _ __ | |_   _ / _| | _____      __",
	"| '__/ _ \\ '_ \\| | | | | |_| |/ _ \\ \\ /\\ / /",
	"| | |  __/ |_) | | |_| |  _| | (_) \\ V  V /",
	"|_|  \\___| .__/|_|\\__, |_| |_|\\___/ \\_/\\_/",
	"         |_|      |___/",
}

// Teal to blue.
var bannerColors = []string{"#34d399", "#2dd4bf", "#22d3ee", "#38bdf8", "#60a5fa", "#818cf8"}

// PrintBanner writes the replyflow banner followed by the version to w.
// Colors are dropped when w is not a color terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(out.Color(bannerColors[i%len(bannerColors)])))
	}
	fmt.Fprintln(w, out.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
