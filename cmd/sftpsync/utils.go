package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

const ellipsis = "..."

// shortenPath fits p into width display columns by eliding whole leading
// directories first and then the middle of the last element.
func shortenPath(p string, width int) string {
	if width <= 0 || runewidth.StringWidth(p) <= width {
		return p
	}

	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		candidate := ellipsis + "/" + strings.Join(parts[i:], "/")
		if runewidth.StringWidth(candidate) <= width {
			return candidate
		}
	}

	name := parts[len(parts)-1]
	if width <= len(ellipsis) {
		return runewidth.Truncate(name, width, "")
	}
	keep := width - len(ellipsis)
	head := runewidth.Truncate(name, keep/2, "")
	tail := truncateLeft(name, keep-runewidth.StringWidth(head))
	return head + ellipsis + tail
}

// truncateLeft keeps the last width display columns of s.
func truncateLeft(s string, width int) string {
	runes := []rune(s)
	w := 0
	i := len(runes)
	for i > 0 {
		rw := runewidth.RuneWidth(runes[i-1])
		if w+rw > width {
			break
		}
		w += rw
		i--
	}
	return string(runes[i:])
}
