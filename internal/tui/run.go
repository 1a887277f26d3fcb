package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lachiem1/cashflow/internal/app"
)

// Run shows the interactive chart until the user quits or ctx ends.
func Run(ctx context.Context, session *app.Session, opts Options) error {
	p := tea.NewProgram(
		New(session, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	session.Subscribe(func(ev app.Event) {
		p.Send(sessionEventMsg{ev: ev})
	})

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
