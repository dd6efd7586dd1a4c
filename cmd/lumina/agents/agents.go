// Package agentscmder provides the agents command for managing the agent
// presets stored on the inference server.
package agentscmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/agent"
	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/utils"
)

const agentsLongDesc string = `Manage agent presets. An agent is a named system prompt that
"lumina chat --agent <id>" prepends to every conversation.

  lumina agents list [--category c]    List stored agents
  lumina agents show <id>              Show an agent and its prompt
  lumina agents search <query>         Search agents by name and description
  lumina agents templates              List the built-in templates
  lumina agents init                   Store the templates if no agents exist
  lumina agents create --name n ...    Create an agent
  lumina agents update <id> ...        Change an agent
  lumina agents duplicate <id>         Copy an agent
  lumina agents delete <id>            Delete an agent`

const agentsShortDesc string = "Manage agent presets"

func NewAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: agentsShortDesc,
		Long:  agentsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTemplatesCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDuplicateCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

// run loads the environment and hands fn an agent service bound to it.
func run(cmd *cobra.Command, fn func(ctx context.Context, env *setup.Env, svc *agent.Service) error) error {
	return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
		return fn(ctx, env, agent.NewService(env.Client, env.Logger))
	})
}

type listCommander struct {
	category string
}

func newListCmd() *cobra.Command {
	lc := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				var (
					agents []*agent.Agent
					err    error
				)
				if lc.category != "" {
					agents, err = svc.ListByCategory(ctx, agent.NormalizeCategory(lc.category))
				} else {
					agents, err = svc.List(ctx)
				}
				if err != nil {
					return env.Describe(err)
				}

				if len(agents) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render(`No agents. Try "lumina agents init".`))
					return nil
				}
				printAgents(cmd.OutOrStdout(), agents)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lc.category, "category", "", "Only list agents in this category")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent and its system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				a, err := svc.Get(ctx, args[0])
				if err != nil {
					return env.Describe(err)
				}
				if a == nil {
					return fmt.Errorf("agent %q not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("ID:         "), cliui.ValueStyle.Render(a.ID))
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Name:       "), cliui.NameStyle.Render(a.Name))
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Category:   "), cliui.ValueStyle.Render(string(a.Category)))
				if a.Description != "" {
					fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Description:"), cliui.ValueStyle.Render(a.Description))
				}
				if !a.UpdatedAt.IsZero() {
					fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Updated:    "), cliui.DimStyle.Render(a.UpdatedAt.Local().Format("2006-01-02 15:04")))
				}
				fmt.Fprintf(out, "\n%s\n", a.SystemPrompt)
				return nil
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search agents by name and description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, env *setup.Env, svc *agent.Service) error {
				agents, err := svc.Search(ctx, strings.Join(args, " "))
				if err != nil {
					return env.Describe(err)
				}
				if len(agents) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", cliui.DimStyle.Render("No matching agents."))
					return nil
				}
				printAgents(cmd.OutOrStdout(), agents)
				return nil
			})
		},
	}
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the built-in agent templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, tpl := range agent.Templates {
				fmt.Fprintf(out, "  %s %s\n", cliui.NameStyle.Render(tpl.Name), cliui.DimStyle.Render("("+string(tpl.Category)+")"))
				fmt.Fprintf(out, "    %s\n", cliui.PreviewStyle.Render(tpl.Description))
			}
			return nil
		},
	}
}

// printAgents prints one line per agent, grouped by category in display order.
func printAgents(w io.Writer, agents []*agent.Agent) {
	for _, c := range agent.Categories {
		var group []*agent.Agent
		for _, a := range agents {
			if a.Category == c {
				group = append(group, a)
			}
		}
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s\n", cliui.RoleStyle.Render(string(c)))
		for _, a := range group {
			fmt.Fprintf(w, "  %s  %s", cliui.DimStyle.Render(a.ID), cliui.NameStyle.Render(a.Name))
			if a.Description != "" {
				fmt.Fprintf(w, "  %s", cliui.PreviewStyle.Render(utils.Truncate(a.Description, 60)))
			}
			fmt.Fprintln(w)
		}
	}
}
