// Package chatcmder provides the chat command, an interactive conversation
// with the model loaded on the inference server.
package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	"github.com/papercomputeco/lumina/pkg/agent"
	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/config"
	"github.com/papercomputeco/lumina/pkg/session"
)

const chatLongDesc string = `Chat with the model loaded on the inference server.

Replies stream in as they are generated. Press Ctrl+C to stop a reply
early; the text received so far is kept. Ctrl+C at the prompt, Ctrl+D,
or /exit leaves the chat.

With a message argument, lumina sends it, prints the reply and exits.

Commands inside the chat:
  /new                Start a new chat
  /history            Print the conversation so far
  /agent <id|none>    Switch agent for the next chat
  /upload <file>...   Attach documents and answer from them
  /docs               List the chat's documents
  /title              Show the chat title
  /help               List commands
  /exit               Leave the chat`

const chatShortDesc string = "Chat with the loaded model"

// chatFlags lists the registry flags the chat command binds.
var chatFlags = []string{
	config.FlagModel,
	config.FlagTitleModel,
	config.FlagTemperature,
	config.FlagMaxTokens,
	config.FlagTopP,
	config.FlagTimeout,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

type chatCommander struct {
	agentID    string
	chatID     string
	resume     bool
	docs       bool
	noMarkdown bool
	dumpStream string

	// Registry flags; their values reach the config through viper.
	model        string
	titleModel   string
	temperature  string
	maxTokens    uint
	topP         string
	timeout      string
	kafkaBrokers string
	kafkaTopic   string
}

// notifyInterrupt delivers Ctrl+C presses. Tests replace it.
var notifyInterrupt = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}

func NewChatCmd() *cobra.Command {
	cc := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cc.run(cmd, strings.TrimSpace(strings.Join(args, " ")))
		},
	}

	cmd.Flags().StringVar(&cc.agentID, "agent", "", "Agent to chat with")
	cmd.Flags().StringVar(&cc.chatID, "chat", "", "Continue a stored chat")
	cmd.Flags().BoolVarP(&cc.resume, "resume", "r", false, "Continue the last chat")
	cmd.Flags().BoolVar(&cc.docs, "docs", false, "Answer from the chat's documents")
	cmd.Flags().BoolVar(&cc.noMarkdown, "no-markdown", false, "Print replies as plain text")
	cmd.Flags().StringVar(&cc.dumpStream, "dump-stream", "", "Append the raw event stream of every reply to this file")
	cmd.MarkFlagsMutuallyExclusive("chat", "resume")

	config.AddStringFlag(cmd, setup.Flags, config.FlagModel, &cc.model)
	config.AddStringFlag(cmd, setup.Flags, config.FlagTitleModel, &cc.titleModel)
	config.AddStringFlag(cmd, setup.Flags, config.FlagTemperature, &cc.temperature)
	config.AddUintFlag(cmd, setup.Flags, config.FlagMaxTokens, &cc.maxTokens)
	config.AddStringFlag(cmd, setup.Flags, config.FlagTopP, &cc.topP)
	config.AddStringFlag(cmd, setup.Flags, config.FlagTimeout, &cc.timeout)
	config.AddStringFlag(cmd, setup.Flags, config.FlagKafkaBrokers, &cc.kafkaBrokers)
	config.AddStringFlag(cmd, setup.Flags, config.FlagKafkaTopic, &cc.kafkaTopic)

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, message string) error {
	var opts []client.Option
	if c.dumpStream != "" {
		f, err := os.OpenFile(c.dumpStream, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening stream dump: %w", err)
		}
		defer f.Close()
		opts = append(opts, client.WithStreamTee(f))
	}

	env, err := setup.Load(cmd, chatFlags, opts...)
	if err != nil {
		return err
	}
	defer env.Close()

	timeout, err := env.Config.Chat.TimeoutDuration()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	model, err := env.ResolveModel(ctx, env.Config.Chat.Model)
	if err != nil {
		if errors.Is(err, setup.ErrNoModel) {
			return err
		}
		return env.Describe(err)
	}

	publisher, err := env.Publisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			env.Logger.Warn("closing event publisher", zap.Error(err))
		}
	}()

	sess := session.New(env.Client, model,
		session.WithTitleModel(env.Config.Chat.TitleModel),
		session.WithSampling(env.Config.Chat.Temperature, maxTokens(env.Config.Chat.MaxTokens), env.Config.Chat.TopP),
		session.WithDocumentContext(c.docs),
		session.WithPublisher(publisher),
		session.WithLogger(env.Logger),
	)
	agents := agent.NewService(env.Client, env.Logger)

	if err := c.restore(ctx, env, sess, agents); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	r := &repl{
		env:     env,
		sess:    sess,
		agents:  agents,
		out:     out,
		timeout: timeout,
	}
	if !c.noMarkdown {
		r.markdown = newTerminalMarkdown(out)
	}

	interrupts, stop := notifyInterrupt()
	defer stop()
	r.interrupts = interrupts

	if message != "" {
		err = r.send(ctx, message)
	} else {
		r.printHeader()
		err = r.run(ctx, cmd.InOrStdin())
	}

	// Let a pending title land before the process exits.
	sess.Wait()

	if chatID := sess.ChatID(); chatID != "" {
		if rerr := env.Configer.RememberSession(sess.AgentID(), chatID); rerr != nil {
			env.Logger.Warn("could not remember session", zap.Error(rerr))
		}
	}
	return err
}

// restore applies --agent, --chat and --resume to sess.
func (c *chatCommander) restore(ctx context.Context, env *setup.Env, sess *session.Session, agents *agent.Service) error {
	chatID := c.chatID
	if c.resume {
		chatID = env.Config.Session.LastChatID
		if chatID == "" {
			return errors.New("no chat to resume")
		}
	}

	if chatID != "" {
		if err := sess.Load(ctx, chatID); err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("chat %q not found", chatID)
			}
			return env.Describe(err)
		}
	}

	agentID := c.agentID
	if agentID == "" {
		agentID = sess.AgentID()
	}
	if agentID == "" {
		return nil
	}

	a, err := agents.Get(ctx, agentID)
	if err != nil {
		return env.Describe(err)
	}
	if a == nil {
		if c.agentID != "" {
			return fmt.Errorf("agent %q not found", agentID)
		}
		// The chat's agent was deleted; carry on without its prompt.
		env.Logger.Warn("agent of chat no longer exists", zap.String("agent_id", agentID))
		sess.SetAgent("", "")
		return nil
	}
	sess.SetAgent(a.ID, a.SystemPrompt)
	return nil
}

func maxTokens(n uint) *int {
	if n == 0 {
		return nil
	}
	v := int(n)
	return &v
}

// newTerminalMarkdown returns a markdown renderer sized to out, or nil when
// out is not a terminal.
func newTerminalMarkdown(out io.Writer) *terminalMarkdown {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	width, height, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return nil
	}
	md, err := cliui.NewMarkdown(min(width, 120))
	if err != nil {
		return nil
	}
	return &terminalMarkdown{md: md, width: width, height: height}
}
