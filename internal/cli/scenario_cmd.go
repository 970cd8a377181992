package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/alexanderramin/branchplan/internal/app"
	"github.com/alexanderramin/branchplan/internal/cli/formatter"
	"github.com/alexanderramin/branchplan/internal/contract"
	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newScenarioCmd(a *App) *cobra.Command {
	var projectRef string

	cmd := &cobra.Command{
		Use:     "scenario",
		Aliases: []string{"sc"},
		Short:   "Branch, edit, resolve and select scenarios",
	}
	cmd.PersistentFlags().StringVarP(&projectRef, "project", "p", "", "Project used to resolve short scenario IDs")

	nodeID := func(cmd *cobra.Command, input string) (string, error) {
		return resolveNodeID(cmd.Context(), a, input, projectRef)
	}

	cmd.AddCommand(
		newScenarioTreeCmd(a),
		newScenarioShowCmd(a, nodeID),
		newScenarioResolveCmd(a, nodeID),
		newScenarioRootCmd(a),
		newScenarioBranchCmd(a, nodeID),
		newScenarioSetStepCmd(a, nodeID),
		newScenarioStatusCmd(a, nodeID),
		newScenarioDeleteCmd(a, nodeID),
	)

	return cmd
}

type nodeResolver func(cmd *cobra.Command, input string) (string, error)

func newScenarioTreeCmd(a *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "tree <project>",
		Short: "Show the scenario tree of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := resolveProject(ctx, a, args[0])
			if err != nil {
				return err
			}
			tree, err := a.Scenarios.GetScenarioTree(ctx, p.ID)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, tree, func() string {
				return formatter.FormatScenarioTree(p, tree)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newScenarioShowCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <scenario>",
		Short: "Show one scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			n, err := a.Scenarios.GetNode(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, contract.NewNodeResponse(n), func() string {
				return formatter.FormatNode(n)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newScenarioResolveCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var output, path string
	var step int

	cmd := &cobra.Command{
		Use:   "resolve <scenario>",
		Short: "Compute the effective configuration of a scenario",
		Long: "Compute the effective configuration of a scenario by layering the\n" +
			"deltas of its ancestors, closest first. --get reads one value from a\n" +
			"step with a gjson path such as step_config.vendor.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" && step == 0 {
				return fmt.Errorf("--get requires --step")
			}
			id, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := a.Scenarios.ResolveScenario(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if step == 0 {
				return writeOutput(out, output, res, func() string {
					return formatter.FormatResolved(res)
				})
			}

			s := res.Step(step)
			if s == nil {
				return domain.ValidateStep(step)
			}
			if path == "" {
				return writeOutput(out, outputOrJSON(output), s, nil)
			}

			value, err := s.Lookup(path)
			if err != nil {
				return err
			}
			if !value.Exists() {
				return fmt.Errorf("%s not set in step %d of scenario %s", path, step, id)
			}
			_, err = fmt.Fprintln(out, value.String())
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	cmd.Flags().IntVar(&step, "step", 0, "Only show this step (1-7)")
	cmd.Flags().StringVar(&path, "get", "", "gjson path to read from the step, e.g. manual_data.budget")
	return cmd
}

// outputOrJSON maps text to JSON for payloads that have no table form.
func outputOrJSON(format string) string {
	if format == "" || format == outputText {
		return outputJSON
	}
	return format
}

func newScenarioRootCmd(a *App) *cobra.Command {
	var name, desc, role, by string

	cmd := &cobra.Command{
		Use:   "root <project>",
		Short: "Create the root scenario of a project that has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := resolveProject(ctx, a, args[0])
			if err != nil {
				return err
			}
			n, err := a.Scenarios.CreateRoot(ctx, p.ID, app.RootMetadata{
				Name:        name,
				Description: desc,
				CreatorRole: domain.CreatorRole(role),
				CreatedBy:   by,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created root scenario %s (%s)\n", n.Name, n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Baseline", "Scenario name")
	cmd.Flags().StringVar(&desc, "description", "", "Scenario description")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleManager), "Creator role (client, manager, supplier)")
	cmd.Flags().StringVar(&by, "by", "", "User creating the scenario")
	return cmd
}

func newScenarioBranchCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var name, desc, role, by string
	var step, seedStep int
	var seed stepFlags

	cmd := &cobra.Command{
		Use:   "branch <parent>",
		Short: "Fork a new scenario from an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			meta := app.BranchMetadata{
				Name:        name,
				Description: desc,
				CreatorRole: domain.CreatorRole(role),
				CreatedBy:   by,
			}
			if seed.set(cmd.Flags()) {
				payload, err := seed.payload(by)
				if err != nil {
					return err
				}
				if seedStep == 0 {
					seedStep = step
				}
				meta.InitialDelta = &app.InitialDelta{StepNumber: seedStep, Payload: payload}
			}

			n, err := a.Scenarios.CreateBranch(cmd.Context(), parentID, step, meta)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created scenario %s (%s) at step %d\n", n.Name, n.ID, step)
			return nil
		},
	}

	cmd.Flags().IntVar(&step, "step", 0, "Step the branch diverges at (1-7)")
	cmd.Flags().StringVar(&name, "name", "", "Scenario name")
	cmd.Flags().StringVar(&desc, "description", "", "Scenario description")
	cmd.Flags().StringVar(&role, "role", "", "Creator role (client, manager, supplier)")
	cmd.Flags().StringVar(&by, "by", "", "User creating the scenario")
	cmd.Flags().IntVar(&seedStep, "seed-step", 0, "Step the seed payload is written to (defaults to --step)")
	seed.register(cmd.Flags(), "seed-")
	_ = cmd.MarkFlagRequired("step")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func newScenarioSetStepCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var by, reason, output string
	var flags stepFlags

	cmd := &cobra.Command{
		Use:   "set-step <scenario> <step>",
		Short: "Replace one step of a scenario",
		Long: "Replace one step of a scenario. The step is written whole: fields\n" +
			"left out are empty in the new delta, not inherited.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid step %q: %w", args[1], err)
			}
			payload, err := flags.payload(by)
			if err != nil {
				return err
			}
			payload.ChangeReason = reason

			d, err := a.Scenarios.UpsertDelta(cmd.Context(), id, step, payload)
			if err != nil {
				return err
			}
			if output == "" || output == outputText {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated step %d of scenario %s\n", d.StepNumber, d.ScenarioNodeID)
				return nil
			}
			return writeOutput(cmd.OutOrStdout(), output, contract.NewDeltaResponse(d), nil)
		},
	}

	flags.register(cmd.Flags(), "")
	cmd.Flags().StringVar(&by, "by", "", "User making the change")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the step changed")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")
	return cmd
}

func newScenarioStatusCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var by string
	var expected int
	var freezeSiblings bool

	cmd := &cobra.Command{
		Use:   "status <scenario> <draft|proposed|frozen|selected>",
		Short: "Move a scenario through its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			opts := app.TransitionOptions{Actor: by, FreezeSiblings: freezeSiblings}
			if cmd.Flags().Changed("expected-version") {
				opts.ExpectedActiveVersion = &expected
			}

			n, err := a.Scenarios.TransitionStatus(cmd.Context(), id, domain.ScenarioStatus(args[1]), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scenario %s is now %s\n", n.Name, n.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "User performing the transition")
	cmd.Flags().IntVar(&expected, "expected-version", 0, "Active pointer version last seen; the selection fails if it moved")
	cmd.Flags().BoolVar(&freezeSiblings, "freeze-siblings", false, "Freeze proposed siblings of the scenario")
	return cmd
}

func newScenarioDeleteCmd(a *App, nodeID nodeResolver) *cobra.Command {
	var by string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <scenario>",
		Short: "Delete a leaf scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := nodeID(cmd, args[0])
			if err != nil {
				return err
			}
			if !yes {
				if !a.interactive() {
					return fmt.Errorf("refusing to delete scenario %s without --yes", id)
				}
				n, err := a.Scenarios.GetNode(ctx, id)
				if err != nil {
					return err
				}
				ok, err := a.confirm(fmt.Sprintf("Delete scenario %q and its deltas?", n.Name))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if err := a.Scenarios.DeleteScenario(ctx, id, by); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted scenario %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "User deleting the scenario")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func (a *App) confirm(title string) (bool, error) {
	if a.Confirm != nil {
		return a.Confirm(title)
	}
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return ok, nil
}

// stepFlags collects the payload of one step from the command line. JSON
// values may be given inline or as @path to read a file.
type stepFlags struct {
	prefix string
	config string
	manual string
	files  string
}

func (f *stepFlags) register(fs *pflag.FlagSet, prefix string) {
	f.prefix = prefix
	fs.StringVar(&f.config, prefix+"config", "", "Step configuration as JSON or @file")
	fs.StringVar(&f.manual, prefix+"manual", "", "Manual data as JSON or @file")
	fs.StringVar(&f.files, prefix+"files", "", `Uploaded files as a JSON array of {"id","name","url","type"} or @file`)
}

func (f *stepFlags) set(fs *pflag.FlagSet) bool {
	for _, name := range []string{"config", "manual", "files"} {
		if fs.Changed(f.prefix + name) {
			return true
		}
	}
	return false
}

func (f *stepFlags) payload(by string) (app.DeltaPayload, error) {
	p := app.DeltaPayload{ChangedBy: by}
	var err error
	if p.StepConfig, err = readJSONFlag(f.prefix+"config", f.config); err != nil {
		return p, err
	}
	if p.ManualData, err = readJSONFlag(f.prefix+"manual", f.manual); err != nil {
		return p, err
	}
	raw, err := readJSONFlag(f.prefix+"files", f.files)
	if err != nil {
		return p, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.UploadedFiles); err != nil {
			return p, fmt.Errorf("--%sfiles: %w", f.prefix, err)
		}
	}
	return p, nil
}

func readJSONFlag(name, value string) (json.RawMessage, error) {
	if value == "" {
		return nil, nil
	}
	data := []byte(value)
	if value[0] == '@' {
		var err error
		if data, err = os.ReadFile(value[1:]); err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("--%s is not valid JSON: %w", name, domain.ErrInvalidArgument)
	}
	return json.RawMessage(data), nil
}
