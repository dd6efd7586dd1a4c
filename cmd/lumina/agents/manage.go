package agentscmder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/agent"
	"github.com/papercomputeco/lumina/pkg/cliui"
)

// agentFields holds the flags shared by create and update.
type agentFields struct {
	name        string
	description string
	prompt      string
	promptFile  string
	category    string
}

func (f *agentFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Agent name")
	cmd.Flags().StringVar(&f.description, "description", "", "Short description")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "System prompt")
	cmd.Flags().StringVar(&f.promptFile, "prompt-file", "", "Read the system prompt from a file")
	cmd.Flags().StringVar(&f.category, "category", "", "Category (general, creative, technical, research, business, custom)")
	cmd.MarkFlagsMutuallyExclusive("prompt", "prompt-file")
}

// systemPrompt returns the prompt from --prompt or --prompt-file, and whether
// either was given.
func (f *agentFields) systemPrompt(cmd *cobra.Command) (string, bool, error) {
	if cmd.Flags().Changed("prompt-file") {
		data, err := os.ReadFile(f.promptFile)
		if err != nil {
			return "", false, fmt.Errorf("reading prompt file: %w", err)
		}
		return string(data), true, nil
	}
	return f.prompt, cmd.Flags().Changed("prompt"), nil
}

func newCreateCmd() *cobra.Command {
	fields := &agentFields{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent",
		Example: `  lumina agents create --name "Reviewer" --category technical \
    --prompt "You review Go code for correctness."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt, _, err := fields.systemPrompt(cmd)
			if err != nil {
				return err
			}

			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				a, err := svc.Create(ctx, agent.Agent{
					Name:         fields.name,
					Description:  fields.description,
					SystemPrompt: prompt,
					Category:     agent.Category(fields.category),
				})
				if err != nil {
					return env.Describe(err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Created %s %s\n",
					cliui.SuccessMark,
					cliui.NameStyle.Render(a.Name),
					cliui.DimStyle.Render(a.ID),
				)
				return nil
			})
		},
	}

	fields.register(cmd)
	return cmd
}

func newUpdateCmd() *cobra.Command {
	fields := &agentFields{}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change an agent; only the given flags are updated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u agent.Update

			prompt, ok, err := fields.systemPrompt(cmd)
			if err != nil {
				return err
			}
			if ok {
				u.SystemPrompt = &prompt
			}
			if cmd.Flags().Changed("name") {
				u.Name = &fields.name
			}
			if cmd.Flags().Changed("description") {
				u.Description = &fields.description
			}
			if cmd.Flags().Changed("category") {
				c := agent.Category(fields.category)
				u.Category = &c
			}
			if u == (agent.Update{}) {
				return errors.New("nothing to update: pass at least one of --name, --description, --prompt, --prompt-file, --category")
			}

			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				a, err := svc.Update(ctx, args[0], u)
				if errors.Is(err, agent.ErrNotFound) {
					return fmt.Errorf("agent %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Updated %s\n", cliui.SuccessMark, cliui.NameStyle.Render(a.Name))
				return nil
			})
		},
	}

	fields.register(cmd)
	return cmd
}

type duplicateCommander struct {
	name string
}

func newDuplicateCmd() *cobra.Command {
	dc := &duplicateCommander{}

	cmd := &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Copy an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				a, err := svc.Duplicate(ctx, args[0], dc.name)
				if errors.Is(err, agent.ErrNotFound) {
					return fmt.Errorf("agent %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Created %s %s\n",
					cliui.SuccessMark,
					cliui.NameStyle.Render(a.Name),
					cliui.DimStyle.Render(a.ID),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dc.name, "name", "", `Name of the copy (default "<name> (Copy)")`)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				err := svc.Delete(ctx, args[0])
				if errors.Is(err, agent.ErrNotFound) {
					return fmt.Errorf("agent %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n", cliui.SuccessMark, args[0])
				return nil
			})
		},
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Store the built-in templates when the server has no agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				n, err := svc.InitializeDefaults(ctx)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				if n == 0 {
					fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("Agents already exist; nothing to do."))
					return nil
				}
				fmt.Fprintf(out, "  %s Stored %d agent templates\n", cliui.SuccessMark, n)
				return nil
			})
		},
	}
}
