package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/lumina/cmd/lumina/setup"
	docscmder "github.com/papercomputeco/lumina/cmd/lumina/docs"
	"github.com/papercomputeco/lumina/pkg/agent"
	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/session"
	"github.com/papercomputeco/lumina/pkg/stream"
)

const helpText = `  /new                Start a new chat
  /history            Print the conversation so far
  /agent [id|none]    Show or switch the agent
  /upload <file>...   Attach documents and answer from them
  /docs               List the chat's documents
  /title              Show the chat title
  /help               List commands
  /exit               Leave the chat`

// maxLineSize bounds a single line of input.
const maxLineSize = 1024 * 1024

type repl struct {
	env        *setup.Env
	sess       *session.Session
	agents     *agent.Service
	out        io.Writer
	markdown   *terminalMarkdown
	interrupts <-chan os.Signal
	timeout    time.Duration
}

func (r *repl) printHeader() {
	fmt.Fprintf(r.out, "  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(r.sess.Model()))
	if id := r.sess.AgentID(); id != "" {
		fmt.Fprintf(r.out, "  %s %s\n", cliui.KeyStyle.Render("Agent:"), cliui.ValueStyle.Render(id))
	}
	if id := r.sess.ChatID(); id != "" {
		fmt.Fprintf(r.out, "  %s %s %s\n",
			cliui.KeyStyle.Render("Chat: "),
			cliui.ValueStyle.Render(r.sess.Title()),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(r.sess.Messages()))),
		)
	}
	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render("Type /help for commands. Ctrl+C stops a reply."))
}

// run reads lines from in until EOF, /exit, Ctrl+C at the prompt, or ctx
// is done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	stop := make(chan struct{})
	defer close(stop)
	lines := readLines(in, stop)

	for {
		fmt.Fprint(r.out, cliui.UserPrompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(r.out, "  %s %s\n", cliui.FailMark, cliui.ErrorStyle.Render(err.Error()))
		}
	}
}

func readLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)

		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

// send streams the reply to text. The first Ctrl+C stops the reply, keeping
// what arrived; a second one abandons the request.
func (r *repl) send(ctx context.Context, text string) error {
	ctx, abort := context.WithCancel(ctx)
	defer abort()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan struct{})
	var watcher sync.WaitGroup
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		r.watchInterrupts(done, abort)
	}()

	view := newReplyView(r.out, r.markdown)
	reply, err := r.sess.Send(ctx, text, view.write)
	view.finish()

	close(done)
	watcher.Wait()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("no complete reply within %s", r.timeout)
		}
		return r.env.Describe(err)
	}
	if reply == nil {
		return nil
	}

	switch {
	case reply.Status == stream.StatusCancelled:
		fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("(stopped)"))
	case reply.Truncated:
		fmt.Fprintf(r.out, "  %s\n", cliui.WarnStyle.Render("The reply ended early and may be incomplete."))
	}
	return nil
}

func (r *repl) watchInterrupts(done <-chan struct{}, abort context.CancelFunc) {
	stopped := false
	for {
		select {
		case <-done:
			return
		case <-r.interrupts:
			if !stopped {
				stopped = true
				r.sess.Stop()
				continue
			}
			abort()
			return
		}
	}
}

// command runs a slash command and reports whether the chat should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, helpText)

	case "/new":
		chat, err := r.sess.NewChat(ctx, "")
		if err != nil {
			return false, r.env.Describe(err)
		}
		fmt.Fprintf(r.out, "  %s New chat %s\n", cliui.SuccessMark, cliui.DimStyle.Render(chat.ID))

	case "/history":
		r.printHistory()

	case "/title":
		t := r.sess.Title()
		if t == "" {
			t = "(untitled)"
		}
		fmt.Fprintf(r.out, "  %s\n", cliui.NameStyle.Render(t))

	case "/agent":
		return false, r.switchAgent(ctx, args)

	case "/upload":
		return false, r.upload(ctx, args)

	case "/docs":
		chatID := r.sess.ChatID()
		if chatID == "" {
			fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("No documents."))
			return false, nil
		}
		list, err := r.env.Client.ListDocuments(ctx, chatID)
		if err != nil {
			return false, r.env.Describe(err)
		}
		docscmder.PrintDocuments(r.out, list.Documents)

	default:
		return false, fmt.Errorf("unknown command %s, try /help", name)
	}
	return false, nil
}

func (r *repl) printHistory() {
	messages := r.sess.Messages()
	if len(messages) == 0 {
		fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("No messages yet."))
		return
	}
	for _, m := range messages {
		content := m.Content
		if m.Failed {
			content = cliui.ErrorStyle.Render(content)
		}
		fmt.Fprintf(r.out, "%s %s\n", cliui.RoleStyle.Render(m.Role+":"), content)
	}
}

func (r *repl) switchAgent(ctx context.Context, args []string) error {
	if len(args) == 0 {
		id := r.sess.AgentID()
		if id == "" {
			id = "(none)"
		}
		fmt.Fprintf(r.out, "  %s %s\n", cliui.KeyStyle.Render("Agent:"), cliui.ValueStyle.Render(id))
		return nil
	}

	if args[0] == "none" {
		r.sess.SetAgent("", "")
		fmt.Fprintf(r.out, "  %s No agent\n", cliui.SuccessMark)
		return nil
	}

	a, err := r.agents.Get(ctx, args[0])
	if err != nil {
		return r.env.Describe(err)
	}
	if a == nil {
		return fmt.Errorf("agent %q not found", args[0])
	}
	r.sess.SetAgent(a.ID, a.SystemPrompt)
	fmt.Fprintf(r.out, "  %s Agent %s\n", cliui.SuccessMark, cliui.NameStyle.Render(a.Name))
	return nil
}

func (r *repl) upload(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("usage: /upload <file>...")
	}

	chatID := r.sess.ChatID()
	if chatID == "" {
		chat, err := r.sess.NewChat(ctx, "")
		if err != nil {
			return r.env.Describe(err)
		}
		chatID = chat.ID
	}

	results := r.env.Client.UploadDocuments(ctx, chatID, paths)
	failed := docscmder.PrintUploadResults(r.out, results)
	if failed < len(results) {
		r.sess.SetDocumentContext(true)
		fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("Replies now draw on this chat's documents."))
	}
	return nil
}
