// Package chatscmder provides the chats command for browsing and managing the
// chats stored on the inference server.
package chatscmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/utils"
)

const chatsLongDesc string = `Browse and manage stored chats.

  lumina chats list                  List chats, most recently updated first
  lumina chats search <query>        Search chats
  lumina chats show <id>             Print a chat transcript
  lumina chats rename <id> <title>   Rename a chat
  lumina chats delete <id>           Delete a chat
  lumina chats clear [--yes]         Delete every chat

Continue a chat with "lumina chat --chat <id>".`

const chatsShortDesc string = "Browse and manage stored chats"

func NewChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: chatsShortDesc,
		Long:  chatsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newRenameCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List chats, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				chats, err := env.Client.ListChats(ctx)
				if err != nil {
					return env.Describe(err)
				}
				printChats(cmd.OutOrStdout(), chats, env.Config.Session.LastChatID)
				return nil
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search chats",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				chats, err := env.Client.SearchChats(ctx, strings.Join(args, " "))
				if err != nil {
					return env.Describe(err)
				}
				printChats(cmd.OutOrStdout(), chats, env.Config.Session.LastChatID)
				return nil
			})
		},
	}
}

// printChats prints one line per chat, newest first. The chat matching
// current is marked.
func printChats(w io.Writer, chats []client.Chat, current string) {
	if len(chats) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("No chats."))
		return
	}

	sortByUpdated(chats)
	for _, c := range chats {
		marker := " "
		if c.ID == current {
			marker = cliui.SuccessMark
		}

		updated := ""
		if t := utils.ParseTimestamp(c.UpdatedAt); !t.IsZero() {
			updated = t.Local().Format("2006-01-02 15:04")
		}

		fmt.Fprintf(w, "%s %s  %s  %s\n",
			marker,
			cliui.DimStyle.Render(c.ID),
			cliui.NameStyle.Render(utils.Truncate(c.Title, 50)),
			cliui.DimStyle.Render(updated),
		)
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a chat transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				chat, err := env.Client.GetChat(ctx, args[0])
				if client.IsNotFound(err) {
					return fmt.Errorf("chat %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n\n", cliui.NameStyle.Render(chat.Title), cliui.DimStyle.Render(chat.ID))
				if len(chat.Messages) == 0 {
					fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No messages."))
					return nil
				}
				for _, m := range chat.Messages {
					fmt.Fprintf(out, "%s\n%s\n\n", cliui.RoleStyle.Render(m.Role+":"), m.Content)
				}
				return nil
			})
		},
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args[1:], " "))
			if title == "" {
				return fmt.Errorf("title must not be empty")
			}

			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				chat, err := env.Client.UpdateChat(ctx, args[0], client.ChatUpdate{Title: &title})
				if client.IsNotFound(err) {
					return fmt.Errorf("chat %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Renamed to %s\n", cliui.SuccessMark, cliui.NameStyle.Render(chat.Title))
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a chat and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				err := env.Client.DeleteChat(ctx, args[0])
				if client.IsNotFound(err) {
					return fmt.Errorf("chat %q not found", args[0])
				}
				if err != nil {
					return env.Describe(err)
				}

				if env.Config.Session.LastChatID == args[0] {
					if err := env.Configer.RememberSession(env.Config.Session.LastAgentID, ""); err != nil {
						env.Logger.Warn("could not forget deleted chat", zap.Error(err))
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted %s\n", cliui.SuccessMark, args[0])
				return nil
			})
		},
	}
}

type clearCommander struct {
	yes bool
}

func newClearCmd() *cobra.Command {
	cc := &clearCommander{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !cc.yes && !confirm(cmd.InOrStdin(), out, "Delete every chat? [y/N] ") {
				fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("Aborted."))
				return nil
			}

			return setup.Run(cmd, nil, func(ctx context.Context, env *setup.Env) error {
				if err := env.Client.ClearChats(ctx); err != nil {
					return env.Describe(err)
				}
				if env.Config.Session.LastChatID != "" {
					if err := env.Configer.RememberSession(env.Config.Session.LastAgentID, ""); err != nil {
						env.Logger.Warn("could not forget cleared chats", zap.Error(err))
					}
				}

				fmt.Fprintf(out, "  %s Deleted every chat\n", cliui.SuccessMark)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&cc.yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
