package cli

import (
	"fmt"

	"github.com/alexanderramin/branchplan/internal/cli/formatter"
	"github.com/alexanderramin/branchplan/internal/contract"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/repository"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Read scenario notifications",
	}

	cmd.AddCommand(
		newNotificationsListCmd(app),
		newNotificationsReadCmd(app),
	)

	return cmd
}

func newNotificationsListCmd(app *App) *cobra.Command {
	var role, output string
	var unread bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List notifications of a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := resolveProject(ctx, app, args[0])
			if err != nil {
				return err
			}
			filter := repository.NotificationFilter{UnreadOnly: unread, Limit: limit}
			if role != "" {
				r := domain.CreatorRole(role)
				filter.Role = &r
			}

			items, err := app.Scenarios.ListNotifications(ctx, p.ID, filter)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, contract.NewNotificationResponses(items), func() string {
				return formatter.FormatNotifications(items)
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only notifications addressed to this role or to everyone")
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of notifications")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newNotificationsReadCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Scenarios.MarkNotificationRead(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", args[0])
			return nil
		},
	}
}
