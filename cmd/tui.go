package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for browsing tracks and computing signatures.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/tracksig-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	var runner ui.SignatureRunner
	if pipeline, _, err := r.signaturePipeline(0); err != nil {
		r.logger.Warn("signature pipeline unavailable", "error", err)
	} else {
		runner = pipeline
	}

	model := ui.NewModel(ctx, store, runner, r.config.Signatures.BatchSize)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
