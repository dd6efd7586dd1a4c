// Package modelscmder provides the models command for inspecting and managing
// the models of the inference server.
package modelscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/cliui"
)

const modelsLongDesc string = `Inspect and manage the models of the inference server.

  lumina models status              Show the loaded model
  lumina models list                List the models being served
  lumina models local               List downloaded models
  lumina models search <query>      Search the model hub
  lumina models info <repo-id>      Show details of a hub model
  lumina models load <model>        Load a model into memory
  lumina models unload              Unload the current model
  lumina models download <repo-id>  Download a model from the hub
  lumina models delete <repo-id>    Delete a downloaded model
  lumina models health              Check server health`

const modelsShortDesc string = "Inspect and manage server models"

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
	}

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newLocalCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newUnloadCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the loaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				status, err := env.Client.ModelStatus(ctx)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				if !status.Loaded || status.CurrentModel == nil {
					fmt.Fprintf(out, "  %s No model loaded\n", cliui.DimStyle.Render("●"))
					return nil
				}
				fmt.Fprintf(out, "  %s %s %s\n",
					cliui.SuccessMark,
					cliui.KeyStyle.Render("Loaded:"),
					cliui.NameStyle.Render(*status.CurrentModel),
				)
				return nil
			})
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				health, err := env.Client.Health(ctx)
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "  %s %s %s\n",
					cliui.SuccessMark,
					cliui.KeyStyle.Render("Server:"),
					cliui.ValueStyle.Render(env.Client.BaseURL()),
				)
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Status:"), cliui.ValueStyle.Render(health.Status))

				model := cliui.DimStyle.Render("<none>")
				if health.ModelLoaded && health.CurrentModel != nil {
					model = cliui.NameStyle.Render(*health.CurrentModel)
				}
				fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Model: "), model)
				return nil
			})
		},
	}
}
