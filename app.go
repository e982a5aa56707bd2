package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// App owns the bubbletea program for the session: one Model, opened once
// over config.Files (or stdin), torn down on exit.
type App struct {
	config  *Config
	model   *Model
	program *tea.Program
}

// NewApp builds an App without opening anything yet; Run does the actual
// file/stdin opening via NewModel.
func NewApp(config *Config) *App {
	return &App{config: config}
}

// Run opens the configured inputs, starts the bubbletea program, and blocks
// until the user quits or the program errors.
func (a *App) Run() error {
	a.model = NewModel(a.config)
	defer a.model.Close()

	a.program = tea.NewProgram(a.model, tea.WithAltScreen())
	if _, err := a.program.Run(); err != nil {
		return fmt.Errorf("failed to run program: %w", err)
	}
	return nil
}
