package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dkeye/Duet/internal/app/orch"
)

// Run shows the presence view until the user quits or ctx ends. Snapshots
// published by the orchestrator are forwarded into the program.
func Run(ctx context.Context, o *orch.Orchestrator, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	program := tea.NewProgram(NewModel(o), opts...)

	updates, unsubscribe := o.Subscribe()
	defer unsubscribe()
	go func() {
		for s := range updates {
			program.Send(SnapshotMsg(s))
		}
	}()

	_, err := program.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
