// Package luminacmder
package luminacmder

import (
	"github.com/spf13/cobra"

	agentscmder "github.com/papercomputeco/lumina/cmd/lumina/agents"
	chatcmder "github.com/papercomputeco/lumina/cmd/lumina/chat"
	chatscmder "github.com/papercomputeco/lumina/cmd/lumina/chats"
	configcmder "github.com/papercomputeco/lumina/cmd/lumina/config"
	docscmder "github.com/papercomputeco/lumina/cmd/lumina/docs"
	initcmder "github.com/papercomputeco/lumina/cmd/lumina/init"
	modelscmder "github.com/papercomputeco/lumina/cmd/lumina/models"
	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	versioncmder "github.com/papercomputeco/lumina/cmd/version"
	"github.com/papercomputeco/lumina/pkg/config"
)

const luminaLongDesc string = `Lumina is a terminal client for a local OpenAI-compatible inference server.

Chat with streamed replies, manage models, agents, chats and documents:
  lumina chat          Start an interactive chat
  lumina models        Load, download and inspect models
  lumina agents        Manage agent presets
  lumina chats         Browse stored chats
  lumina docs          Attach documents to a chat`

const luminaShortDesc string = "Lumina - local LLM chat client"

func NewLuminaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lumina",
		Short:        luminaShortDesc,
		Long:         luminaLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(setup.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().String(setup.FlagConfigDir, "", "Directory holding config.toml (default: ./.lumina or ~/.lumina)")
	cmd.PersistentFlags().String(setup.FlagLogFile, "", "Also write JSON debug logs to this file")

	var apiTarget string
	config.AddPersistentStringFlag(cmd, setup.Flags, config.FlagAPITarget, &apiTarget)

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(agentscmder.NewAgentsCmd())
	cmd.AddCommand(chatscmder.NewChatsCmd())
	cmd.AddCommand(docscmder.NewDocsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
