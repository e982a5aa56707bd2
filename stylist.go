package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LogLevel is a coarse severity bucket used only for presentation — a
// cheap keyword scan over a line's bytes, never a parsed or validated
// field of the core. Structured-log parsing is out of scope; this is
// the minimal classification a line consumer needs to pick a color.
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelDebug
	LevelWarn
	LevelError
)

// Color returns the lipgloss color the TUI paints a line with.
func (l LogLevel) Color() lipgloss.Color {
	switch l {
	case LevelDebug:
		return lipgloss.Color("8") // Gray
	case LevelWarn:
		return lipgloss.Color("11") // Yellow
	case LevelError:
		return lipgloss.Color("9") // Red
	default:
		return lipgloss.Color("12") // Light Blue
	}
}

// levelOf assigns a LogLevel to a raw line by a cheap keyword scan. It
// never mutates, parses structure from, or validates the line: the core
// treats it as an opaque byte run.
func levelOf(line []byte) LogLevel {
	upper := strings.ToUpper(string(line))
	switch {
	case strings.Contains(upper, "ERROR") || strings.Contains(upper, "FATAL"):
		return LevelError
	case strings.Contains(upper, "WARN"):
		return LevelWarn
	case strings.Contains(upper, "DEBUG") || strings.Contains(upper, "TRACE"):
		return LevelDebug
	default:
		return LevelInfo
	}
}
