package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vibesurf-ai/VibeSurf-sub002/pkg/types"
)

// Run shows the watcher until the user quits or ctx is canceled. events is
// usually a Broadcaster subscription; each event triggers a refresh.
func Run(ctx context.Context, ctrl Controller, events <-chan types.Event) error {
	p := tea.NewProgram(newModel(ctrl, events), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run terminal watcher: %w", err)
	}
	return nil
}
