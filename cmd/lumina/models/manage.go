package modelscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/cliui"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <model>",
		Short: "Load a model into memory, replacing the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				var loaded string
				err := cliui.Step(cmd.OutOrStdout(), "Loading "+args[0], func() error {
					resp, err := env.Client.LoadModel(ctx, args[0])
					if err != nil {
						return err
					}
					loaded = resp.Model
					return nil
				})
				if err != nil {
					return env.Describe(err)
				}

				if loaded == "" {
					loaded = args[0]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.KeyStyle.Render("Loaded:"), cliui.NameStyle.Render(loaded))
				return nil
			})
		},
	}
}

func newUnloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unload",
		Short: "Unload the current model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				resp, err := env.Client.UnloadModel(ctx)
				if err != nil {
					return env.Describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.SuccessMark, resp.Message)
				return nil
			})
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <repo-id>",
		Short: "Download a model from the hub",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				var path string
				err := cliui.Step(cmd.OutOrStdout(), "Downloading "+args[0], func() error {
					resp, err := env.Client.DownloadModel(ctx, args[0])
					if err != nil {
						return err
					}
					path = resp.Path
					return nil
				})
				if err != nil {
					return env.Describe(err)
				}

				if path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.KeyStyle.Render("Path:"), cliui.DimStyle.Render(path))
				}
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <repo-id>",
		Short: "Delete a downloaded model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				resp, err := env.Client.DeleteModel(ctx, args[0])
				if err != nil {
					return env.Describe(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", cliui.SuccessMark, resp.Message)
				return nil
			})
		},
	}
}
