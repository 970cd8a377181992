package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/cli/formatter"
	"github.com/alexanderramin/branchplan/internal/contract"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/alexanderramin/branchplan/internal/importer"
	"github.com/spf13/cobra"
)

func newProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(
		newProjectCreateCmd(app),
		newProjectListCmd(app),
		newProjectShowCmd(app),
		newProjectImportCmd(app),
		newProjectExportCmd(app),
	)

	return cmd
}

func newProjectCreateCmd(a *App) *cobra.Command {
	var name, shortID, rootName, rootDesc, role, by string
	var noRoot bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project with its root scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := &domain.Project{
				ShortID: strings.ToUpper(shortID),
				Name:    name,
			}

			if noRoot {
				if err := a.Projects.Create(ctx, p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s [%s]\n", p.Name, p.DisplayID())
				return nil
			}

			root, err := a.Projects.CreateWithRoot(ctx, p, app.RootMetadata{
				Name:        rootName,
				Description: rootDesc,
				CreatorRole: domain.CreatorRole(role),
				CreatedBy:   by,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created project %s [%s] with root scenario %s (%s)\n",
				p.Name, p.DisplayID(), root.Name, root.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name")
	cmd.Flags().StringVar(&shortID, "id", "", "Short ID (3-6 uppercase letters + 2-4 digits, e.g. PRJ01)")
	cmd.Flags().StringVar(&rootName, "root-name", "Baseline", "Name of the root scenario")
	cmd.Flags().StringVar(&rootDesc, "root-description", "", "Description of the root scenario")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleManager), "Creator role of the root scenario (client, manager, supplier)")
	cmd.Flags().StringVar(&by, "by", "", "User creating the project")
	cmd.Flags().BoolVar(&noRoot, "no-root", false, "Create the project without a root scenario")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newProjectListCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := app.Projects.List(cmd.Context())
			if err != nil {
				return err
			}
			resp := make([]contract.ProjectResponse, len(projects))
			for i, p := range projects {
				resp[i] = contract.NewProjectResponse(p, nil)
			}
			return writeOutput(cmd.OutOrStdout(), output, resp, func() string {
				return formatter.FormatProjectList(projects)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newProjectShowCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, contract.NewProjectResponse(p, nil), func() string {
				return formatter.FormatProjectList([]*domain.Project{p})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newProjectImportCmd(app *App) *cobra.Command {
	var shortID string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a project and its scenario tree from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := importer.LoadImportSchema(args[0])
			if err != nil {
				return err
			}
			if shortID != "" {
				schema.Project.ShortID = shortID
			}
			res, err := app.Imports.ImportProjectFromSchema(cmd.Context(), schema)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported project %s [%s]: %d scenarios, %d deltas\n",
				res.Project.Name, res.Project.DisplayID(), res.ScenarioCount, res.DeltaCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&shortID, "id", "", "Override the short ID from the file")
	return cmd
}

func newProjectExportCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Export a project and its scenario tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			schema, err := app.Imports.ExportProject(cmd.Context(), p.ID)
			if err != nil {
				return err
			}
			// The export is a data file; text output is its JSON form.
			return writeOutput(cmd.OutOrStdout(), output, schema, func() string {
				data, _ := json.MarshalIndent(schema, "", "  ")
				return string(data)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format (json, yaml)")
	return cmd
}
