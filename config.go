package main

import "time"

// Config holds the CLI-supplied options that drive the TUI/CLI shell.
// These flags are consumed entirely by the CLI/TUI layer; the core
// packages never see a Config value.
type Config struct {
	MaxLines    int
	Files       []string
	RefreshRate int
	Include     string
	Exclude     string
	Timezone    string
	Timeout     time.Duration
}
