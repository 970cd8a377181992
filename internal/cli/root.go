package cli

import (
	"context"

	"github.com/alexanderramin/branchplan/internal/service"
	"github.com/spf13/cobra"
)

// App holds references to all service interfaces used by CLI commands.
type App struct {
	Projects  service.ProjectService
	Scenarios service.ScenarioService
	Imports   service.ImportService

	// Serve runs the HTTP API on addr until ctx is cancelled. Nil makes the
	// serve command fail.
	Serve    func(ctx context.Context, addr string) error
	HTTPAddr string

	// IsInteractive reports whether stdin is a terminal. Nil means it is not.
	IsInteractive func() bool
	// Confirm asks a yes/no question. Nil uses a huh form.
	Confirm func(title string) (bool, error)
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}

// NewRootCmd creates the top-level "branchplan" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "branchplan",
		Short:         "Scenario branching for procurement projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newProjectCmd(app),
		newScenarioCmd(app),
		newNotificationsCmd(app),
		newServeCmd(app),
	)

	return root
}
