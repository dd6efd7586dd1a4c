package modelscmder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/cliui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the models being served",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				list, err := env.Client.ListModels(ctx)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				if len(list.Data) == 0 {
					fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No models are being served."))
					return nil
				}
				for _, m := range list.Data {
					fmt.Fprintf(out, "  %s %s\n", cliui.NameStyle.Render(m.ID), cliui.DimStyle.Render(m.OwnedBy))
				}
				return nil
			})
		},
	}
}

func newLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "local",
		Short: "List downloaded models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				models, err := env.Client.ListLocalModels(ctx)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				if len(models) == 0 {
					fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render(`No models downloaded. Try "lumina models search".`))
					return nil
				}

				width := 0
				for _, m := range models {
					width = max(width, len(m.RepoID))
				}
				for _, m := range models {
					fmt.Fprintf(out, "  %s  %s\n",
						cliui.NameStyle.Render(fmt.Sprintf("%-*s", width, m.RepoID)),
						cliui.DimStyle.Render(formatGB(m.SizeGB)),
					)
				}
				return nil
			})
		},
	}
}

type searchCommander struct {
	limit int
}

func newSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the model hub",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				return cmder.run(ctx, cmd, env, strings.Join(args, " "))
			})
		},
	}

	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", client.DefaultSearchLimit, "Maximum number of results")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, cmd *cobra.Command, env *setup.Env, query string) error {
	models, err := env.Client.SearchModels(ctx, query, c.limit)
	if err != nil {
		return env.Describe(err)
	}

	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No models found."))
		return nil
	}

	for _, m := range models {
		printRemote(cmd, m, false)
	}
	return nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <repo-id>",
		Short: "Show details of a hub model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				m, err := env.Client.ModelInfo(ctx, args[0])
				if err != nil {
					if client.IsNotFound(err) {
						return fmt.Errorf("model %q not found", args[0])
					}
					return env.Describe(err)
				}
				printRemote(cmd, *m, true)
				return nil
			})
		},
	}
}

func printRemote(cmd *cobra.Command, m client.RemoteModel, withTags bool) {
	out := cmd.OutOrStdout()

	size := "size unknown"
	if m.SizeGB != nil {
		size = formatGB(*m.SizeGB)
	}

	fmt.Fprintf(out, "  %s %s\n",
		cliui.NameStyle.Render(m.RepoID),
		cliui.DimStyle.Render(fmt.Sprintf("(%s downloads, %s likes, %s)",
			strconv.Itoa(m.Downloads), strconv.Itoa(m.Likes), size)),
	)
	if withTags && len(m.Tags) > 0 {
		fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Tags:"), cliui.ValueStyle.Render(strings.Join(m.Tags, ", ")))
	}
}

func formatGB(gb float64) string {
	return strconv.FormatFloat(gb, 'f', 2, 64) + " GB"
}
