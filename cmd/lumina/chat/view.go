package chatcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/lumina/pkg/cliui"
)

// terminalMarkdown renders finished replies in place of their raw text.
type terminalMarkdown struct {
	md     *cliui.Markdown
	width  int
	height int
}

// replyView prints a reply as it streams in. With markdown enabled, the
// finished reply is redrawn rendered, as long as its raw text still fits on
// screen.
type replyView struct {
	out      io.Writer
	markdown *terminalMarkdown
	started  bool
	raw      strings.Builder
}

func newReplyView(out io.Writer, markdown *terminalMarkdown) *replyView {
	return &replyView{out: out, markdown: markdown}
}

func (v *replyView) write(fragment, _ string) {
	if !v.started {
		v.started = true
		fmt.Fprint(v.out, cliui.AssistantPrompt)
	}
	fmt.Fprint(v.out, fragment)
	v.raw.WriteString(fragment)
}

func (v *replyView) finish() {
	if !v.started {
		return
	}

	raw := v.raw.String()
	if v.markdown == nil || strings.TrimSpace(raw) == "" {
		fmt.Fprintln(v.out)
		return
	}

	rows := rowsFor(cliui.AssistantPrompt+raw, v.markdown.width)
	if rows >= v.markdown.height {
		fmt.Fprintln(v.out)
		return
	}

	rendered, err := v.markdown.md.Render(raw)
	if err != nil {
		fmt.Fprintln(v.out)
		return
	}

	// Back to the first row of the reply, then clear to the end of screen.
	fmt.Fprint(v.out, "\r")
	if rows > 1 {
		fmt.Fprintf(v.out, "\x1b[%dA", rows-1)
	}
	fmt.Fprint(v.out, "\x1b[J")
	fmt.Fprint(v.out, rendered)
}

// rowsFor returns the number of terminal rows text occupies at width
// columns. A width of zero or less counts lines only.
func rowsFor(text string, width int) int {
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := lipgloss.Width(line)
		if width <= 0 || w <= width {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}
