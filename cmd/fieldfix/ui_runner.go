package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"fieldfix/internal/batch"
	"fieldfix/internal/ui"
)

// runBatchWithUI runs the orchestrator in the background while a Bubble Tea
// program renders its events. Quitting the view early cancels the run; the
// files left are reported with the cancellation error.
func runBatchWithUI(ctx context.Context, title string, opts batch.Options, paths []string) (*batch.BatchReport, error) {
	events := make(chan batch.Event, 256)
	opts.Sink = batch.ChannelSink{Ch: events}
	orch, err := batch.New(opts)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	reportCh := make(chan *batch.BatchReport, 1)
	go func() {
		reportCh <- orch.Run(runCtx, paths)
		close(events)
	}()

	model := ui.NewProgressModel(title, orch.DisplayNames(paths), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout), tea.WithContext(ctx))
	_, uiErr := program.Run()

	// дочитываем события, чтобы Run не завис на полном канале
	go func() {
		for range events {
		}
	}()
	select {
	case report := <-reportCh:
		return report, uiErr
	default:
		cancel()
		return <-reportCh, uiErr
	}
}
